// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/retry"
)

var (
	ErrPollNotFound = errors.New("poll not found")
	ErrInvalidPoll  = errors.New("invalid poll")
)

// Options configures a Store. Zero values select the defaults.
type Options struct {
	// Retry bounds how often a transaction is re-run after a transient failure.
	Retry retry.Policy
	// Sleep waits between attempts. Defaults to retry.Sleep.
	Sleep retry.Sleeper
	// Clock replaces the server clock. Unset, transactions read the database
	// clock where the dialect has one and time.Now otherwise.
	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// Store is the durable record of polls, options and votes.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
	policy  retry.Policy
	sleep   retry.Sleeper
	clock   func() time.Time
	dbClock bool
	logger  *slog.Logger
	metrics metrics.Recorder
}

func New(conn *sql.DB, dialect db.Dialect, opts Options) *Store {
	s := &Store{
		db:      conn,
		dialect: dialect,
		policy:  opts.Retry,
		sleep:   opts.Sleep,
		clock:   opts.Clock,
		dbClock: opts.Clock == nil,
		logger:  logging.OrDefault(opts.Logger),
		metrics: opts.Metrics,
	}
	if s.policy.MaxAttempts == 0 {
		s.policy = retry.DefaultPolicy()
	}
	if s.sleep == nil {
		s.sleep = retry.Sleep
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNop()
	}

	return s
}

// Now returns the server clock in UTC.
func (s *Store) Now() time.Time {
	return s.clock().UTC()
}

// TxNow returns the server clock as seen by tx. On PostgreSQL that is the
// transaction's CURRENT_TIMESTAMP, so every replica judges expiry by the
// same clock. An injected Clock always wins.
func (s *Store) TxNow(ctx context.Context, tx *sql.Tx) (time.Time, error) {
	q := s.dialect.ClockQuery()
	if !s.dbClock || q == "" {
		return s.Now(), nil
	}

	var now time.Time
	if err := tx.QueryRowContext(ctx, q).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database clock: %w", err)
	}

	return now.UTC(), nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction at the dialect's write isolation level
// and commits it. If fn or the commit fails with a transient error, the
// whole transaction is re-run under the retry policy. Any other error rolls
// back and is returned as is.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempt := func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions())
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		return nil
	}

	onRetry := func(n int, delay time.Duration, err error) {
		s.metrics.RecordTxRetry()
		s.logger.Warn("retrying transaction", "attempt", n, "delay", delay, "error", err)
	}

	return retry.Do(ctx, s.policy, s.sleep, db.IsTransient, onRetry, attempt)
}

// read runs a non-transactional query under the retry policy.
func (s *Store) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	onRetry := func(n int, delay time.Duration, err error) {
		s.logger.Warn("retrying read", "op", op, "attempt", n, "delay", delay, "error", err)
	}

	return retry.Do(ctx, s.policy, s.sleep, db.IsTransient, onRetry, fn)
}
