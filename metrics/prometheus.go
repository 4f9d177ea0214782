// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Recorder backed by client_golang collectors.
type Prometheus struct {
	votes           *prometheus.CounterVec
	voteLatency     *prometheus.HistogramVec
	txRetries       prometheus.Counter
	eventsPublished prometheus.Counter
	publishAttempts prometheus.Histogram
	eventsDropped   *prometheus.CounterVec
	eventsConsumed  *prometheus.CounterVec
	recomputes      *prometheus.CounterVec
	recomputeTime   prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
	subscribers     prometheus.Gauge
	broadcastSends  *prometheus.CounterVec
	auditMismatches *prometheus.CounterVec
}

var _ Recorder = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil). namespace defaults to "livepoll".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "livepoll"
	}

	p := &Prometheus{
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "submitted_total",
			Help:      "Vote submissions by outcome (accepted, rejection reason, error).",
		}, []string{"outcome"}),
		voteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "submit_seconds",
			Help:      "Latency of vote submissions in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"outcome"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "votes",
			Name:      "tx_retries_total",
			Help:      "Vote transactions retried after a transient failure.",
		}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Vote events appended to the log.",
		}),
		publishAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_attempts",
			Help:      "Attempts needed to append a vote event.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Vote events dropped without reaching the log, by reason.",
		}, []string{"reason"}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Vote events delivered to the leaderboard, by whether they were coalesced.",
		}, []string{"coalesced"}),
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "recomputes_total",
			Help:      "Leaderboard recomputes by trigger and result.",
		}, []string{"trigger", "result"}),
		recomputeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "recompute_seconds",
			Help:      "Leaderboard recompute latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "cache_lookups_total",
			Help:      "Leaderboard cache lookups by result (hit, miss).",
		}, []string{"result"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Currently registered live subscribers.",
		}),
		broadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "sends_total",
			Help:      "Broadcast sends by result (delivered, failed).",
		}, []string{"result"}),
		auditMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "mismatches_total",
			Help:      "Polls whose counters disagreed with the vote ledger.",
		}, []string{"poll_id"}),
	}

	reg.MustRegister(
		p.votes, p.voteLatency, p.txRetries,
		p.eventsPublished, p.publishAttempts, p.eventsDropped, p.eventsConsumed,
		p.recomputes, p.recomputeTime, p.cacheLookups,
		p.subscribers, p.broadcastSends, p.auditMismatches,
	)

	return p
}

func (p *Prometheus) RecordVote(outcome string, duration time.Duration) {
	p.votes.WithLabelValues(outcome).Inc()
	p.voteLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (p *Prometheus) RecordTxRetry() {
	p.txRetries.Inc()
}

func (p *Prometheus) RecordEventPublished(attempts int) {
	p.eventsPublished.Inc()
	p.publishAttempts.Observe(float64(attempts))
}

func (p *Prometheus) RecordEventDropped(reason string) {
	p.eventsDropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) RecordEventConsumed(coalesced bool) {
	p.eventsConsumed.WithLabelValues(strconv.FormatBool(coalesced)).Inc()
}

func (p *Prometheus) RecordRecompute(trigger string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	p.recomputes.WithLabelValues(trigger, result).Inc()
	p.recomputeTime.Observe(duration.Seconds())
}

func (p *Prometheus) RecordCacheLookup(hit bool) {
	if hit {
		p.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	p.cacheLookups.WithLabelValues("miss").Inc()
}

func (p *Prometheus) SetSubscribers(n int) {
	p.subscribers.Set(float64(n))
}

func (p *Prometheus) RecordBroadcast(delivered, failed int) {
	p.broadcastSends.WithLabelValues("delivered").Add(float64(delivered))
	p.broadcastSends.WithLabelValues("failed").Add(float64(failed))
}

func (p *Prometheus) RecordAuditMismatch(pollID string) {
	p.auditMismatches.WithLabelValues(pollID).Inc()
}
