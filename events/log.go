// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielhkuo/livepoll/models"
)

// Subjects and stream used for vote events.
const (
	StreamName     = "VOTES"
	StreamSubjects = "votes.>"
	// VoteTopicPrefix is followed by the poll id.
	VoteTopicPrefix = "votes.recorded."
	// AllVotesTopic matches the vote events of every poll.
	AllVotesTopic = VoteTopicPrefix + ">"
)

var (
	// ErrPoison marks a message that can never be handled. The log stops
	// redelivering it instead of retrying.
	ErrPoison = errors.New("undeliverable message")

	ErrAlreadyStarted   = errors.New("already started")
	ErrNotStarted       = errors.New("not started")
	ErrPublisherStopped = errors.New("publisher stopped")
)

// Handler processes one delivered payload. Returning nil acknowledges the
// message; any other error asks for redelivery unless it wraps ErrPoison.
type Handler func(ctx context.Context, payload []byte) error

// Subscription is a running consumer.
type Subscription interface {
	// Stop ends delivery and waits for the in-flight handler to return.
	Stop()
}

// Log is a durable append log with at-least-once delivery. No ordering is
// guaranteed across messages.
type Log interface {
	// Append stores payload under topic. msgID identifies the message for
	// deduplication of repeated appends.
	Append(ctx context.Context, topic, msgID string, payload []byte) error

	// Subscribe delivers messages matching topic to h. durable names the
	// consumer so delivery resumes where it left off after a restart.
	Subscribe(ctx context.Context, topic, durable string, h Handler) (Subscription, error)
}

// TopicFor returns the topic of a poll's vote events.
func TopicFor(pollID string) string {
	return VoteTopicPrefix + pollID
}

// VoteHandler decodes VOTE_RECORDED payloads and passes them to sink. sink
// must not block. Payloads that do not decode to a vote event are poison.
func VoteHandler(sink func(models.VoteEvent)) Handler {
	return func(_ context.Context, payload []byte) error {
		var e models.VoteEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return fmt.Errorf("%w: %w", ErrPoison, err)
		}
		if e.Type != models.EventVoteRecorded || e.PollID == "" {
			return fmt.Errorf("%w: unexpected event type %q", ErrPoison, e.Type)
		}

		sink(e)
		return nil
	}
}
