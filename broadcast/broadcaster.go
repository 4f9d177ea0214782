// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"log/slog"
	"sync"

	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
)

// Conn is a live subscriber connection.
type Conn interface {
	Send(payload []byte) error
	Close() error
	Open() bool
}

// Broadcaster fans payloads out to registered connections.
//
// The registry does not own its connections: it closes one only when a send
// to it failed or on Close.
type Broadcaster struct {
	mu    sync.Mutex
	conns map[Conn]struct{}

	logger  *slog.Logger
	metrics metrics.Recorder
}

// New creates an empty Broadcaster.
func New(logger *slog.Logger, rec metrics.Recorder) *Broadcaster {
	if rec == nil {
		rec = metrics.NewNop()
	}

	return &Broadcaster{
		conns:   make(map[Conn]struct{}),
		logger:  logging.OrDefault(logger),
		metrics: rec,
	}
}

// Register adds conn to the registry. Registering twice is a no-op.
func (b *Broadcaster) Register(conn Conn) {
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	n := len(b.conns)
	b.mu.Unlock()

	b.metrics.SetSubscribers(n)
	b.logger.Debug("subscriber registered", "subscribers", n)
}

// Unregister removes conn without closing it.
func (b *Broadcaster) Unregister(conn Conn) {
	b.mu.Lock()
	_, ok := b.conns[conn]
	delete(b.conns, conn)
	n := len(b.conns)
	b.mu.Unlock()

	if ok {
		b.metrics.SetSubscribers(n)
		b.logger.Debug("subscriber unregistered", "subscribers", n)
	}
}

// Broadcast sends payload to every open connection and returns the number
// of deliveries. Connections that are closed or fail to receive are removed;
// the rest still get the payload.
func (b *Broadcaster) Broadcast(payload []byte) int {
	b.mu.Lock()
	conns := make([]Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	delivered := 0
	var failed []Conn
	for _, c := range conns {
		if !c.Open() {
			failed = append(failed, c)
			continue
		}
		if err := c.Send(payload); err != nil {
			b.logger.Debug("subscriber send failed", "error", err)
			c.Close()
			failed = append(failed, c)
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, c := range failed {
			delete(b.conns, c)
		}
		n := len(b.conns)
		b.mu.Unlock()
		b.metrics.SetSubscribers(n)
	}
	b.metrics.RecordBroadcast(delivered, len(failed))

	return delivered
}

// Len returns the number of registered connections.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Close unregisters and closes every connection.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := b.conns
	b.conns = make(map[Conn]struct{})
	b.mu.Unlock()

	for c := range conns {
		c.Close()
	}
	b.metrics.SetSubscribers(0)
	b.logger.Info("subscribers closed", "count", len(conns))
}
