// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/retry"
)

// Publisher defaults.
const (
	DefaultBufferSize    = 1024
	DefaultAppendTimeout = 5 * time.Second
)

// PublisherConfig configures a Publisher. Zero values select the defaults.
type PublisherConfig struct {
	BufferSize    int
	Retry         retry.Policy
	Sleep         retry.Sleeper
	AppendTimeout time.Duration
	Logger        *slog.Logger
	Metrics       metrics.Recorder
}

// Publisher hands accepted votes to the log without blocking the caller.
//
// Events are buffered and appended by one background worker with bounded
// exponential backoff. An event that cannot be buffered, or that still fails
// after the last attempt, is dropped, logged, and counted.
type Publisher struct {
	log           Log
	policy        retry.Policy
	sleep         retry.Sleeper
	appendTimeout time.Duration
	logger        *slog.Logger
	metrics       metrics.Recorder

	queue chan models.VoteEvent

	mu      sync.RWMutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
}

// NewPublisher creates a publisher appending to log. Call Start to run it.
func NewPublisher(log Log, cfg PublisherConfig) *Publisher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = DefaultAppendTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}

	return &Publisher{
		log:           log,
		policy:        cfg.Retry,
		sleep:         cfg.Sleep,
		appendTimeout: cfg.AppendTimeout,
		logger:        logging.OrDefault(cfg.Logger),
		metrics:       cfg.Metrics,
		queue:         make(chan models.VoteEvent, cfg.BufferSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the append worker.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.stopped {
		return ErrPublisherStopped
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)

	return nil
}

// Publish buffers event for delivery and returns immediately. It never
// fails from the caller's point of view; drops are reported through the
// logger and metrics.
func (p *Publisher) Publish(event models.VoteEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.drop(event, metrics.DropStopped, nil)
		return
	}

	select {
	case p.queue <- event:
	default:
		p.drop(event, metrics.DropBufferFull, nil)
	}
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	return len(p.queue)
}

// Stop refuses new events and lets the worker drain the buffer. If ctx ends
// first, in-flight appends are cancelled and the rest of the buffer is
// dropped. Stop waits for the worker either way.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.doneCh
		return ctx.Err()
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case e := <-p.queue:
			p.deliver(ctx, e)
		case <-p.stopCh:
			for {
				select {
				case e := <-p.queue:
					p.deliver(ctx, e)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, e models.VoteEvent) {
	if ctx.Err() != nil {
		p.drop(e, metrics.DropStopped, ctx.Err())
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		p.drop(e, metrics.DropRetriesExhausted, err)
		return
	}
	topic := TopicFor(e.PollID)

	attempts := 0
	onRetry := func(attempt int, delay time.Duration, err error) {
		p.logger.Warn("vote event append failed, retrying",
			"vote_id", e.VoteID, "attempt", attempt, "delay", delay, "error", err)
	}

	err = retry.Do(ctx, p.policy, p.sleep, nil, onRetry, func(ctx context.Context) error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, p.appendTimeout)
		defer cancel()
		return p.log.Append(actx, topic, e.VoteID, payload)
	})
	if err != nil {
		reason := metrics.DropRetriesExhausted
		if ctx.Err() != nil {
			reason = metrics.DropStopped
		}
		p.drop(e, reason, err)
		return
	}

	p.metrics.RecordEventPublished(attempts)
}

func (p *Publisher) drop(e models.VoteEvent, reason string, err error) {
	p.metrics.RecordEventDropped(reason)
	p.logger.Error("vote event dropped",
		"vote_id", e.VoteID,
		"poll_id", e.PollID,
		"reason", reason,
		"error", err,
	)
}
