// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielhkuo/livepoll/leaderboard"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/middleware"
)

// MaxLeaderboardLimit caps ?limit= on GET /leaderboard.
const MaxLeaderboardLimit = 100

type LeaderboardHandler struct {
	board  *leaderboard.Aggregator
	logger *slog.Logger
}

func NewLeaderboardHandler(board *leaderboard.Aggregator, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, logger: logging.OrDefault(logger)}
}

// GetLeaderboard handles GET /leaderboard?limit=N
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := leaderboard.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxLeaderboardLimit {
			middleware.ErrorResponse(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	resp, err := h.board.TopOptions(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load leaderboard", "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Leaderboard unavailable")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetPollRanking handles GET /polls/{id}/ranking
func (h *LeaderboardHandler) GetPollRanking(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")

	ranking, err := h.board.GetPollRanking(r.Context(), pollID)
	if errors.Is(err, leaderboard.ErrPollNotRanked) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found or expired")
		return
	}
	if err != nil {
		h.logger.Error("failed to rank poll", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Leaderboard unavailable")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, ranking)
}
