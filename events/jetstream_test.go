// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/testutil"
)

func newTestJetStreamLog(t *testing.T) *JetStreamLog {
	t.Helper()
	_, nc := testutil.StartEmbeddedNATS(t)

	cfg := DefaultJetStreamConfig()
	cfg.Storage = jetstream.MemoryStorage
	cfg.AckWait = time.Second
	cfg.FetchExpiry = time.Second
	cfg.RetryBackoff = 50 * time.Millisecond

	l, err := NewJetStreamLog(context.Background(), nc, cfg, logging.Discard())
	require.NoError(t, err)
	return l
}

type eventSink struct {
	mu     sync.Mutex
	events []models.VoteEvent
}

func (s *eventSink) add(e models.VoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func appendEvent(t *testing.T, l *JetStreamLog, e models.VoteEvent) {
	t.Helper()
	payload, err := json.Marshal(e)
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), TopicFor(e.PollID), e.VoteID, payload))
}

func TestJetStreamLog_AppendAndSubscribe(t *testing.T) {
	l := newTestJetStreamLog(t)
	sink := &eventSink{}

	sub, err := l.Subscribe(context.Background(), AllVotesTopic, "leaderboard-test", VoteHandler(sink.add))
	require.NoError(t, err)
	defer sub.Stop()

	e1 := testEvent("vote-1")
	e2 := testEvent("vote-2")
	e2.PollID = "poll-2"
	appendEvent(t, l, e1)
	appendEvent(t, l, e2)

	require.Eventually(t, func() bool { return sink.len() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestJetStreamLog_DeduplicatesByMessageID(t *testing.T) {
	l := newTestJetStreamLog(t)
	e := testEvent("vote-1")

	appendEvent(t, l, e)
	appendEvent(t, l, e)

	stream, err := l.js.Stream(context.Background(), StreamName)
	require.NoError(t, err)
	info, err := stream.Info(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, info.State.Msgs)
}

func TestJetStreamLog_RedeliversAfterHandlerError(t *testing.T) {
	l := newTestJetStreamLog(t)

	var calls atomic.Int32
	h := func(ctx context.Context, payload []byte) error {
		if calls.Add(1) == 1 {
			return errors.New("aggregator busy")
		}
		return nil
	}

	sub, err := l.Subscribe(context.Background(), AllVotesTopic, "redeliver-test", h)
	require.NoError(t, err)
	defer sub.Stop()

	appendEvent(t, l, testEvent("vote-1"))

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestJetStreamLog_TerminatesPoisonMessages(t *testing.T) {
	l := newTestJetStreamLog(t)
	sink := &eventSink{}

	require.NoError(t, l.Append(context.Background(), TopicFor("poll-1"), "garbage", []byte("not json")))
	appendEvent(t, l, testEvent("vote-1"))

	sub, err := l.Subscribe(context.Background(), AllVotesTopic, "poison-test", VoteHandler(sink.add))
	require.NoError(t, err)
	defer sub.Stop()

	require.Eventually(t, func() bool { return sink.len() == 1 }, 5*time.Second, 10*time.Millisecond)

	// The poison message is not redelivered
	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, 1, sink.len())
}

func TestJetStreamLog_DurableResumes(t *testing.T) {
	l := newTestJetStreamLog(t)
	sink := &eventSink{}

	sub, err := l.Subscribe(context.Background(), AllVotesTopic, "resume-test", VoteHandler(sink.add))
	require.NoError(t, err)
	appendEvent(t, l, testEvent("vote-1"))
	require.Eventually(t, func() bool { return sink.len() == 1 }, 5*time.Second, 10*time.Millisecond)
	sub.Stop()

	appendEvent(t, l, testEvent("vote-2"))

	sub, err = l.Subscribe(context.Background(), AllVotesTopic, "resume-test", VoteHandler(sink.add))
	require.NoError(t, err)
	defer sub.Stop()

	require.Eventually(t, func() bool { return sink.len() == 2 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, 2, sink.len())
}

func TestPublisher_WithJetStream(t *testing.T) {
	l := newTestJetStreamLog(t)
	sink := &eventSink{}

	sub, err := l.Subscribe(context.Background(), AllVotesTopic, "publisher-test", VoteHandler(sink.add))
	require.NoError(t, err)
	defer sub.Stop()

	p := NewPublisher(l, PublisherConfig{Logger: logging.Discard()})
	require.NoError(t, p.Start())

	for i := range 5 {
		p.Publish(testEvent(string(rune('a' + i))))
	}
	require.NoError(t, p.Stop(context.Background()))

	require.Eventually(t, func() bool { return sink.len() == 5 }, 5*time.Second, 10*time.Millisecond)
}
