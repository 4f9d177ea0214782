// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/testutil"
	"github.com/danielhkuo/livepoll/voting"
)

func dialLive(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(f.live.ServeWS))
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	return ws
}

func readUpdate(t *testing.T, ws *websocket.Conn) models.LeaderboardUpdate {
	t.Helper()
	var update models.LeaderboardUpdate
	if err := ws.ReadJSON(&update); err != nil {
		t.Fatalf("Failed to read update: %v", err)
	}
	if update.Type != models.EventLeaderboardUpdate {
		t.Fatalf("Expected %s, got %q", models.EventLeaderboardUpdate, update.Type)
	}
	return update
}

func TestLive_SnapshotOnConnect(t *testing.T) {
	f := newFixture(t)
	p, o := testutil.CreateOpenPoll(t, f.db, "A", "B")
	testutil.AddTestVotes(t, f.db, p, o[1], 2)

	ws := dialLive(t, f)
	update := readUpdate(t, ws)

	if len(update.Data.Data) != 1 || update.Data.Data[0].OptionID != o[1] {
		t.Errorf("Unexpected snapshot %+v", update.Data.Data)
	}
}

func TestLive_RegistersAndReceivesBroadcasts(t *testing.T) {
	f := newFixture(t)
	ws := dialLive(t, f)
	readUpdate(t, ws)

	deadline := time.Now().Add(time.Second)
	for f.broadcaster.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.broadcaster.Len() != 1 {
		t.Fatalf("Expected 1 registered subscriber, got %d", f.broadcaster.Len())
	}

	if n := f.broadcaster.Broadcast([]byte(`{"type":"LEADERBOARD_UPDATE","data":{"data":[],"timestamp":"2025-01-01T00:00:00Z"}}`)); n != 1 {
		t.Errorf("Expected 1 delivery, got %d", n)
	}
	readUpdate(t, ws)

	ws.Close()
	deadline = time.Now().Add(time.Second)
	for f.broadcaster.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.broadcaster.Len() != 0 {
		t.Error("Expected subscriber to be unregistered after disconnect")
	}
}

func TestLive_SubmitVote(t *testing.T) {
	f := newFixture(t)
	p, o := testutil.CreateOpenPoll(t, f.db, "A", "B")
	ws := dialLive(t, f)
	readUpdate(t, ws)

	send := func(v any) models.LiveReply {
		t.Helper()
		if err := ws.WriteJSON(v); err != nil {
			t.Fatalf("Failed to send: %v", err)
		}
		var reply models.LiveReply
		if err := ws.ReadJSON(&reply); err != nil {
			t.Fatalf("Failed to read reply: %v", err)
		}
		return reply
	}

	reply := send(models.LiveVoteMessage{PollID: p, OptionID: o[0], UserID: "alice"})
	if reply.Status != LiveStatusSuccess || reply.Data == nil || reply.Data.VoteID == "" {
		t.Errorf("Expected success, got %+v", reply)
	}

	reply = send(models.LiveVoteMessage{PollID: p, OptionID: o[1], UserID: "alice"})
	if reply.Status != LiveStatusError || reply.Message != voting.AlreadyVoted.Message() {
		t.Errorf("Expected already voted, got %+v", reply)
	}

	reply = send(models.LiveVoteMessage{PollID: p, OptionID: o[1]})
	if reply.Status != LiveStatusError || !strings.Contains(reply.Message, "Missing required fields") {
		t.Errorf("Expected missing fields, got %+v", reply)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Status != LiveStatusError || reply.Message != "Invalid message format" {
		t.Errorf("Expected invalid format, got %+v", reply)
	}
}
