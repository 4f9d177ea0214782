// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livepoll/broadcast"
	"github.com/danielhkuo/livepoll/events"
	"github.com/danielhkuo/livepoll/leaderboard"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/retry"
	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/voting"
)

// DurablePrefix starts the consumer name the leaderboard subscribes with.
// Each engine appends its own id, so every replica sees every vote event.
const DurablePrefix = "leaderboard"

var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
)

// Config configures an Engine. Zero values select the component defaults.
type Config struct {
	LeaderboardTTL time.Duration
	// Durable names the log consumer feeding the leaderboard. It must be
	// unique per process; empty picks DurablePrefix plus a random id.
	Durable string
	// PublishRetry bounds appends of a single event.
	PublishRetry  retry.Policy
	PublishBuffer int
	Logger        *slog.Logger
	Metrics       metrics.Recorder
}

// Engine wires the vote path to the leaderboard:
//
//	Votes.SubmitVote -> publisher -> log -> Leaderboard -> Broadcaster
//
// Start runs the background workers; Stop shuts them down in reverse order.
type Engine struct {
	Store       *store.Store
	Votes       *voting.Manager
	Leaderboard *leaderboard.Aggregator
	Broadcaster *broadcast.Broadcaster

	log       events.Log
	publisher *events.Publisher
	durable   string
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	sub     events.Subscription
	cancel  context.CancelFunc
	runDone chan struct{}
}

// New builds an engine over st and log. Nothing runs until Start.
func New(st *store.Store, log events.Log, cfg Config) *Engine {
	logger := logging.OrDefault(cfg.Logger)
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.NewNop()
	}
	if cfg.Durable == "" {
		cfg.Durable = DurablePrefix + "-" + uuid.NewString()[:8]
	}

	publisher := events.NewPublisher(log, events.PublisherConfig{
		BufferSize: cfg.PublishBuffer,
		Retry:      cfg.PublishRetry,
		Logger:     logger.With("component", "publisher"),
		Metrics:    rec,
	})
	bc := broadcast.New(logger.With("component", "broadcast"), rec)
	agg := leaderboard.New(st, bc, leaderboard.Config{
		TTL:     cfg.LeaderboardTTL,
		Logger:  logger.With("component", "leaderboard"),
		Metrics: rec,
	})

	return &Engine{
		Store:       st,
		Votes:       voting.NewManager(st, publisher, logger.With("component", "voting"), rec),
		Leaderboard: agg,
		Broadcaster: bc,
		log:         log,
		publisher:   publisher,
		durable:     cfg.Durable,
		logger:      logger,
	}
}

// Start launches the publisher worker, the log subscription and the
// leaderboard worker. ctx bounds only the startup.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrAlreadyStarted
	}

	if err := e.publisher.Start(); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := e.log.Subscribe(ctx, events.AllVotesTopic, e.durable, events.VoteHandler(e.Leaderboard.HandleEvent))
	if err != nil {
		cancel()
		_ = e.publisher.Stop(ctx)
		return fmt.Errorf("failed to subscribe to vote events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Leaderboard.Run(runCtx)
	}()

	e.sub = sub
	e.cancel = cancel
	e.runDone = done
	e.started = true
	e.logger.Info("engine started", "durable", e.durable)

	return nil
}

// Stop stops the publisher (draining buffered events until ctx ends), the
// subscription and the leaderboard worker, then closes every subscriber.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.stopped {
		return ErrNotStarted
	}
	e.stopped = true

	var stopErr error
	if err := e.publisher.Stop(ctx); err != nil {
		e.logger.Error("publisher did not drain", "pending", e.publisher.Pending(), "error", err)
		stopErr = fmt.Errorf("publisher stop failed: %w", err)
	}

	e.sub.Stop()
	e.cancel()
	select {
	case <-e.runDone:
	case <-ctx.Done():
		if stopErr == nil {
			stopErr = ctx.Err()
		}
	}

	e.Broadcaster.Close()
	e.logger.Info("engine stopped")

	return stopErr
}
