// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danielhkuo/livepoll/broadcast"
	"github.com/danielhkuo/livepoll/leaderboard"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/voting"
)

// Live connection limits.
const (
	MaxLiveMessageBytes = 4096
	LiveVoteTimeout     = 10 * time.Second
)

// Reply statuses on live connections.
const (
	LiveStatusSuccess = "success"
	LiveStatusError   = "error"
)

// LiveHandler serves GET /ws. A connection receives the current leaderboard
// on connect and every update after it, and may submit votes as
// {"pollId", "optionId", "userId"} messages.
type LiveHandler struct {
	upgrader    websocket.Upgrader
	broadcaster *broadcast.Broadcaster
	board       *leaderboard.Aggregator
	votes       *voting.Manager
	logger      *slog.Logger
}

func NewLiveHandler(b *broadcast.Broadcaster, board *leaderboard.Aggregator, votes *voting.Manager, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same policy as the CORS middleware
			CheckOrigin: func(*http.Request) bool { return true },
		},
		broadcaster: b,
		board:       board,
		votes:       votes,
		logger:      logging.OrDefault(logger),
	}
}

// ServeWS handles GET /ws
func (h *LiveHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(MaxLiveMessageBytes)

	conn := broadcast.NewWSConn(ws, 0)
	defer func() {
		h.broadcaster.Unregister(conn)
		conn.MarkClosed()
	}()

	// The initial snapshot goes out before registration, with broadcasts
	// held off, so a newer update can't overtake it.
	var sendErr error
	err = h.board.Attach(r.Context(), func(snap *leaderboard.Snapshot) {
		if snap != nil {
			sendErr = conn.SendJSON(models.LeaderboardUpdate{
				Type: models.EventLeaderboardUpdate,
				Data: models.LeaderboardResponse{Data: snap.Top(leaderboard.DefaultLimit), CapturedAt: snap.CapturedAt},
			})
			if sendErr != nil {
				return
			}
		}
		h.broadcaster.Register(conn)
	})
	if sendErr != nil {
		return
	}
	if err != nil {
		h.logger.Warn("no leaderboard for new subscriber", "error", err)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		if err := conn.SendJSON(h.handleMessage(r, data)); err != nil {
			return
		}
	}
}

func (h *LiveHandler) handleMessage(r *http.Request, data []byte) models.LiveReply {
	var msg models.LiveVoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.LiveReply{Status: LiveStatusError, Message: "Invalid message format"}
	}
	if msg.PollID == "" || msg.OptionID == "" || msg.UserID == "" {
		return models.LiveReply{Status: LiveStatusError, Message: "Missing required fields: pollId, optionId, or userId"}
	}

	ctx, cancel := context.WithTimeout(r.Context(), LiveVoteTimeout)
	defer cancel()

	res, err := h.votes.SubmitVote(ctx, msg.PollID, msg.OptionID, msg.UserID)
	if errors.Is(err, voting.ErrInvalidVote) {
		return models.LiveReply{Status: LiveStatusError, Message: "Missing required fields: pollId, optionId, or userId"}
	}
	if err != nil {
		h.logger.Error("failed to submit live vote", "poll_id", msg.PollID, "error", err)
		return models.LiveReply{Status: LiveStatusError, Message: "Failed to record vote"}
	}
	if !res.Accepted() {
		return models.LiveReply{Status: LiveStatusError, Message: res.Reason.Message()}
	}

	return models.LiveReply{
		Status: LiveStatusSuccess,
		Data:   &models.SubmitVoteResponse{VoteID: res.Vote.ID, Message: VoteRecordedMessage},
	}
}
