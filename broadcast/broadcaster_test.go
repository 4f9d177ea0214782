// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
)

type fakeConn struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	failSend bool
	closes   int
}

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.received = append(c.received, p)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
	return nil
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

type broadcastRecorder struct {
	metrics.Nop
	subscribers atomic.Int64
	delivered   atomic.Int64
	failed      atomic.Int64
}

func (r *broadcastRecorder) SetSubscribers(n int) { r.subscribers.Store(int64(n)) }
func (r *broadcastRecorder) RecordBroadcast(delivered, failed int) {
	r.delivered.Add(int64(delivered))
	r.failed.Add(int64(failed))
}

func TestBroadcast_SkipsClosedSubscriber(t *testing.T) {
	rec := &broadcastRecorder{}
	b := New(logging.Discard(), rec)
	s1, s2, s3 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	b.Register(s1)
	b.Register(s2)
	b.Register(s3)

	s2.Close()
	delivered := b.Broadcast([]byte(`{"type":"LEADERBOARD_UPDATE"}`))

	require.Equal(t, 2, delivered)
	require.Equal(t, 1, s1.count())
	require.Equal(t, 0, s2.count())
	require.Equal(t, 1, s3.count())
	require.Equal(t, 2, b.Len())
	require.EqualValues(t, 2, rec.subscribers.Load())
	require.EqualValues(t, 1, rec.failed.Load())
}

func TestBroadcast_FailedSendRemovesOnlyThatSubscriber(t *testing.T) {
	b := New(logging.Discard(), nil)
	good, bad := &fakeConn{}, &fakeConn{failSend: true}
	b.Register(good)
	b.Register(bad)

	require.Equal(t, 1, b.Broadcast([]byte("a")))
	require.Equal(t, 1, b.Len())
	require.True(t, bad.closed)

	require.Equal(t, 1, b.Broadcast([]byte("b")))
	require.Equal(t, 2, good.count())
}

func TestRegisterUnregister(t *testing.T) {
	b := New(logging.Discard(), nil)
	c := &fakeConn{}

	b.Register(c)
	b.Register(c)
	require.Equal(t, 1, b.Len())

	b.Unregister(c)
	require.Equal(t, 0, b.Len())
	require.False(t, c.closed, "unregister must not close the connection")
	require.Equal(t, 0, b.Broadcast([]byte("x")))

	// Unknown connections are ignored
	b.Unregister(&fakeConn{})
}

func TestClose(t *testing.T) {
	b := New(logging.Discard(), nil)
	a, c := &fakeConn{}, &fakeConn{}
	b.Register(a)
	b.Register(c)

	b.Close()

	require.Equal(t, 0, b.Len())
	require.True(t, a.closed)
	require.True(t, c.closed)
}

func TestBroadcast_ConcurrentRegistration(t *testing.T) {
	b := New(logging.Discard(), nil)
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := &fakeConn{}
			b.Register(c)
			b.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			b.Broadcast([]byte("tick"))
		}()
	}
	wg.Wait()

	require.Equal(t, 0, b.Len())
}

func TestWSConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverConn := make(chan *WSConn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		serverConn <- NewWSConn(ws, time.Second)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	conn := <-serverConn
	require.True(t, conn.Open())

	b := New(logging.Discard(), nil)
	b.Register(conn)
	require.Equal(t, 1, b.Broadcast([]byte(`{"type":"LEADERBOARD_UPDATE"}`)))

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"LEADERBOARD_UPDATE"}`, string(msg))

	require.NoError(t, conn.SendJSON(map[string]string{"status": "ok"}))
	_, msg, err = client.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(msg))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.False(t, conn.Open())
	require.Error(t, conn.Send([]byte("late")))

	require.Equal(t, 0, b.Broadcast([]byte("after close")))
	require.Equal(t, 0, b.Len())
}
