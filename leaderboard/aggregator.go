// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/retry"
)

// ErrPollNotRanked is returned for a poll that is unknown or expired.
var ErrPollNotRanked = errors.New("poll is not ranked")

// Defaults
const (
	DefaultTTL       = 10 * time.Second
	DefaultLimit     = 10
	DefaultQueueSize = 256
)

// Recompute triggers, as recorded in metrics.
const (
	TriggerMiss  = "miss"
	TriggerEvent = "event"
	TriggerTTL   = "ttl"
)

// Source supplies polls and the server clock.
type Source interface {
	ListPolls(ctx context.Context) ([]models.Poll, error)
	Now() time.Time
}

// Notifier pushes a serialized update to live subscribers.
type Notifier interface {
	Broadcast(payload []byte) int
}

// Config configures an Aggregator. Zero values select the defaults.
type Config struct {
	TTL       time.Duration
	QueueSize int
	// BroadcastLimit is the number of entries pushed to subscribers.
	BroadcastLimit int
	// Retry bounds how often a transient source failure is retried within
	// one recompute. Sleep waits between attempts and defaults to
	// retry.Sleep.
	Retry retry.Policy
	Sleep retry.Sleeper
	// Transient classifies source errors. Defaults to db.IsTransient.
	Transient func(error) bool
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// Aggregator maintains the cached leaderboard snapshot.
//
// Reads are served from the cache while it is younger than the TTL. Vote
// events recompute it immediately through Run, and the TTL catches any event
// that was lost. A failed recompute keeps serving the previous snapshot.
type Aggregator struct {
	source   Source
	notifier Notifier
	ttl      time.Duration
	limit    int
	logger   *slog.Logger
	metrics  metrics.Recorder

	policy    retry.Policy
	sleep     retry.Sleeper
	transient func(error) bool

	current atomic.Pointer[Snapshot]
	// mu serializes recomputes.
	mu sync.Mutex
	// notifyMu serializes broadcasts with Attach, so every subscriber sees
	// snapshots in capture order.
	notifyMu sync.Mutex

	queue   chan models.VoteEvent
	touched *xsync.Map[string, struct{}]

	// Only touched by the Run goroutine.
	lastBroadcast uint64
	broadcasted   bool
}

// New creates an Aggregator. notifier may be nil when nothing listens.
func New(source Source, notifier Notifier, cfg Config) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BroadcastLimit <= 0 {
		cfg.BroadcastLimit = DefaultLimit
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	if cfg.Transient == nil {
		cfg.Transient = db.IsTransient
	}

	return &Aggregator{
		source:   source,
		notifier: notifier,
		ttl:      cfg.TTL,
		limit:    cfg.BroadcastLimit,
		logger:   logging.OrDefault(cfg.Logger),
		metrics:  cfg.Metrics,

		policy:    cfg.Retry,
		sleep:     cfg.Sleep,
		transient: cfg.Transient,

		queue:   make(chan models.VoteEvent, cfg.QueueSize),
		touched: xsync.NewMap[string, struct{}](),
	}
}

// Snapshot returns the cached snapshot, recomputing it if it is missing or
// older than the TTL.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := a.current.Load(); s != nil && a.fresh(s) {
		a.metrics.RecordCacheLookup(true)
		return s, nil
	}
	a.metrics.RecordCacheLookup(false)

	s, _, err := a.refresh(ctx, TriggerMiss, false)
	return s, err
}

// GetTopOptions returns the entries ranked within limit, never more than
// limit of them. limit <= 0 selects DefaultLimit.
func (a *Aggregator) GetTopOptions(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	resp, err := a.TopOptions(ctx, limit)
	return resp.Data, err
}

// TopOptions is GetTopOptions with the capture time of the snapshot the
// entries came from.
func (a *Aggregator) TopOptions(ctx context.Context, limit int) (models.LeaderboardResponse, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	s, err := a.Snapshot(ctx)
	if err != nil {
		return models.LeaderboardResponse{}, err
	}

	return models.LeaderboardResponse{Data: s.Top(limit), CapturedAt: s.CapturedAt}, nil
}

// Attach calls attach with the latest snapshot while no broadcast is in
// flight. A subscriber that sends the snapshot and registers inside attach
// never receives an older snapshot afterwards. attach is called with nil,
// and the error returned, when no snapshot can be computed.
func (a *Aggregator) Attach(ctx context.Context, attach func(*Snapshot)) error {
	_, err := a.Snapshot(ctx)

	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	attach(a.current.Load())

	return err
}

// GetPollRanking returns the dense rank of an open poll by total votes and
// the number of open polls.
func (a *Aggregator) GetPollRanking(ctx context.Context, pollID string) (models.PollRanking, error) {
	s, err := a.Snapshot(ctx)
	if err != nil {
		return models.PollRanking{}, err
	}

	r, ok := s.Ranking(pollID)
	if !ok {
		return models.PollRanking{}, ErrPollNotRanked
	}

	return r, nil
}

// HandleEvent queues a vote event for Run without blocking. When the queue
// is full the event is coalesced into the pending recompute.
func (a *Aggregator) HandleEvent(e models.VoteEvent) {
	a.touched.Store(e.PollID, struct{}{})

	select {
	case a.queue <- e:
		a.metrics.RecordEventConsumed(false)
	default:
		a.metrics.RecordEventConsumed(true)
	}
}

// Run recomputes after each batch of queued events and on every TTL tick,
// notifying subscribers whenever the ranking changed. It returns when ctx
// ends.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.queue:
			a.drainQueue()
			a.recomputeAndNotify(ctx, TriggerEvent)
		case <-ticker.C:
			if s := a.current.Load(); s == nil || !a.fresh(s) {
				a.recomputeAndNotify(ctx, TriggerTTL)
			}
		}
	}
}

func (a *Aggregator) drainQueue() {
	for {
		select {
		case <-a.queue:
		default:
			return
		}
	}
}

func (a *Aggregator) recomputeAndNotify(ctx context.Context, trigger string) {
	polls := a.takeTouched()
	_, recomputed, err := a.refresh(ctx, trigger, true)
	if err != nil || !recomputed {
		// Keep them for the next attempt
		for _, id := range polls {
			a.touched.Store(id, struct{}{})
		}
		return
	}

	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	// A reader may have stored a newer snapshot since the refresh above.
	s := a.current.Load()
	if a.broadcasted && s.Fingerprint == a.lastBroadcast {
		a.logger.Debug("leaderboard unchanged, skipping broadcast", "trigger", trigger)
		return
	}
	if a.notifier == nil {
		return
	}

	update := models.LeaderboardUpdate{
		Type: models.EventLeaderboardUpdate,
		Data: models.LeaderboardResponse{Data: s.Top(a.limit), CapturedAt: s.CapturedAt},
	}
	for _, id := range polls {
		if r, ok := s.PollResult(id); ok {
			update.Polls = append(update.Polls, r)
		}
	}

	payload, err := json.Marshal(update)
	if err != nil {
		a.logger.Error("failed to encode leaderboard update", "error", err)
		return
	}

	delivered := a.notifier.Broadcast(payload)
	a.lastBroadcast = s.Fingerprint
	a.broadcasted = true
	a.logger.Debug("leaderboard broadcast", "trigger", trigger, "subscribers", delivered, "polls", len(update.Polls))
}

// takeTouched removes and returns the polls touched since the last call,
// sorted.
func (a *Aggregator) takeTouched() []string {
	var ids []string
	a.touched.Range(func(id string, _ struct{}) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		a.touched.Delete(id)
	}
	sort.Strings(ids)

	return ids
}

// refresh recomputes the snapshot unless force is false and another caller
// refreshed it meanwhile. On failure it falls back to the previous snapshot
// and reports recomputed=false; it errors only when there is nothing to
// fall back to.
func (a *Aggregator) refresh(ctx context.Context, trigger string, force bool) (s *Snapshot, recomputed bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.current.Load()
	if !force && prev != nil && a.fresh(prev) {
		return prev, false, nil
	}

	start := time.Now()
	polls, err := a.loadPolls(ctx, trigger)
	a.metrics.RecordRecompute(trigger, time.Since(start), err)
	if err != nil {
		if prev != nil {
			a.logger.Error("leaderboard recompute failed, serving stale snapshot",
				"trigger", trigger, "captured_at", prev.CapturedAt, "error", err)
			return prev, false, nil
		}
		a.logger.Error("leaderboard recompute failed", "trigger", trigger, "error", err)
		return nil, false, err
	}

	s = Build(polls, a.source.Now())
	a.current.Store(s)

	return s, true, nil
}

// loadPolls reads the source, retrying transient failures with backoff.
func (a *Aggregator) loadPolls(ctx context.Context, trigger string) ([]models.Poll, error) {
	var polls []models.Poll
	onRetry := func(attempt int, delay time.Duration, err error) {
		a.logger.Warn("leaderboard source failed, retrying",
			"trigger", trigger, "attempt", attempt, "delay", delay, "error", err)
	}

	err := retry.Do(ctx, a.policy, a.sleep, a.transient, onRetry, func(ctx context.Context) error {
		var err error
		polls, err = a.source.ListPolls(ctx)
		return err
	})

	return polls, err
}

func (a *Aggregator) fresh(s *Snapshot) bool {
	return a.source.Now().Sub(s.CapturedAt) < a.ttl
}
