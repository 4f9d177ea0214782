// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/danielhkuo/livepoll/logging"
)

// JetStreamConfig configures the vote stream and its consumers.
type JetStreamConfig struct {
	Stream   string
	Subjects []string
	Storage  jetstream.StorageType
	// MaxAge bounds how long events are retained. Zero keeps them forever.
	MaxAge time.Duration
	// Duplicates is the window in which appends with the same id are dropped.
	Duplicates time.Duration

	AckWait     time.Duration
	MaxDeliver  int
	BatchSize   int
	FetchExpiry time.Duration
	// RetryBackoff is the pause before re-creating a failed pull iterator.
	RetryBackoff time.Duration
	// InactiveThreshold removes a consumer nobody has pulled from for that
	// long, which cleans up after replicas that went away.
	InactiveThreshold time.Duration
}

// DefaultJetStreamConfig returns a file-backed VOTES stream on votes.>.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		Stream:       StreamName,
		Subjects:     []string{StreamSubjects},
		Storage:      jetstream.FileStorage,
		MaxAge:       24 * time.Hour,
		Duplicates:   2 * time.Minute,
		AckWait:      30 * time.Second,
		MaxDeliver:   5,
		BatchSize:    64,
		FetchExpiry:  5 * time.Second,
		RetryBackoff: time.Second,

		InactiveThreshold: time.Hour,
	}
}

// JetStreamLog is a Log backed by a NATS JetStream stream.
type JetStreamLog struct {
	js     jetstream.JetStream
	cfg    JetStreamConfig
	logger *slog.Logger
}

var _ Log = (*JetStreamLog)(nil)

// NewJetStreamLog creates or updates the stream described by cfg.
func NewJetStreamLog(ctx context.Context, nc *nats.Conn, cfg JetStreamConfig, logger *slog.Logger) (*JetStreamLog, error) {
	def := DefaultJetStreamConfig()
	if cfg.Stream == "" {
		cfg.Stream = def.Stream
	}
	if len(cfg.Subjects) == 0 {
		cfg.Subjects = def.Subjects
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = def.MaxDeliver
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FetchExpiry < time.Second {
		cfg.FetchExpiry = def.FetchExpiry
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.InactiveThreshold <= 0 {
		cfg.InactiveThreshold = def.InactiveThreshold
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   cfg.Subjects,
		Storage:    cfg.Storage,
		MaxAge:     cfg.MaxAge,
		Duplicates: cfg.Duplicates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Stream, err)
	}

	return &JetStreamLog{js: js, cfg: cfg, logger: logging.OrDefault(logger)}, nil
}

// Append publishes payload and waits for the stream's acknowledgement.
// msgID becomes the Nats-Msg-Id header, so a repeated append inside the
// duplicate window is stored once.
func (l *JetStreamLog) Append(ctx context.Context, topic, msgID string, payload []byte) error {
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}

	ack, err := l.js.Publish(ctx, topic, payload, opts...)
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", topic, err)
	}
	if ack.Duplicate {
		l.logger.Debug("duplicate append ignored", "topic", topic, "msg_id", msgID)
	}

	return nil
}

// Subscribe creates (or resumes) a durable explicit-ack consumer filtered to
// topic and pulls from it on its own goroutine until the subscription is
// stopped.
func (l *JetStreamLog) Subscribe(ctx context.Context, topic, durable string, h Handler) (Subscription, error) {
	cons, err := l.js.CreateOrUpdateConsumer(ctx, l.cfg.Stream, jetstream.ConsumerConfig{
		Name:          durable,
		Durable:       durable,
		FilterSubject: topic,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       l.cfg.AckWait,
		MaxDeliver:    l.cfg.MaxDeliver,

		InactiveThreshold: l.cfg.InactiveThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	// Detached from ctx; the subscription is ended by Stop.
	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &jsSubscription{cancel: cancel, done: make(chan struct{})}
	go l.pullLoop(loopCtx, cons, durable, h, sub.done)

	l.logger.Info("subscribed to vote events", "durable", durable, "topic", topic)

	return sub, nil
}

type jsSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *jsSubscription) Stop() {
	s.cancel()
	<-s.done
}

func (l *JetStreamLog) pullLoop(ctx context.Context, cons jetstream.Consumer, durable string, h Handler, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		iter, err := cons.Messages(
			jetstream.PullMaxMessages(l.cfg.BatchSize),
			jetstream.PullExpiry(l.cfg.FetchExpiry),
		)
		if err != nil {
			l.logger.Error("failed to create message iterator", "durable", durable, "error", err)
			if !l.wait(ctx) {
				return
			}
			continue
		}

		// Unblock Next when the subscription stops
		stop := context.AfterFunc(ctx, iter.Stop)

		for {
			msg, err := iter.Next()
			if err != nil {
				if !errors.Is(err, jetstream.ErrMsgIteratorClosed) {
					l.logger.Warn("message iterator failed", "durable", durable, "error", err)
				}
				break
			}
			l.dispatch(ctx, msg, h)
		}

		stop()
		iter.Stop()
		if !l.wait(ctx) {
			return
		}
	}
}

func (l *JetStreamLog) dispatch(ctx context.Context, msg jetstream.Msg, h Handler) {
	err := h(ctx, msg.Data())
	switch {
	case err == nil:
		err = msg.Ack()
	case errors.Is(err, ErrPoison):
		l.logger.Warn("terminating undeliverable message", "subject", msg.Subject(), "error", err)
		err = msg.Term()
	default:
		l.logger.Warn("handler failed, requesting redelivery", "subject", msg.Subject(), "error", err)
		err = msg.Nak()
	}
	if err != nil {
		l.logger.Warn("failed to acknowledge message", "subject", msg.Subject(), "error", err)
	}
}

// wait pauses before the next iterator and reports whether to continue.
func (l *JetStreamLog) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(l.cfg.RetryBackoff):
		return true
	}
}
