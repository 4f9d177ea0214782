// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/engine"
	"github.com/danielhkuo/livepoll/handlers"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/middleware"
)

// NewRouter registers the API on a new mux. A nil gatherer leaves /metrics
// unregistered.
func NewRouter(e *engine.Engine, cfg cliparse.Config, logger *slog.Logger, gatherer prometheus.Gatherer) *http.ServeMux {
	logger = logging.OrDefault(logger)
	mux := http.NewServeMux()

	// Initialize handlers
	pollHandler := handlers.NewPollHandler(e.Store, e.Votes, cfg, logger)
	voteHandler := handlers.NewVoteHandler(e.Votes, logger)
	leaderboardHandler := handlers.NewLeaderboardHandler(e.Leaderboard, logger)
	liveHandler := handlers.NewLiveHandler(e.Broadcaster, e.Leaderboard, e.Votes, logger)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Polls
	mux.HandleFunc("POST /polls", middleware.WithLogging(logger, pollHandler.CreatePoll))
	mux.HandleFunc("GET /polls/{id}", middleware.WithLogging(logger, pollHandler.GetPoll))
	mux.HandleFunc("POST /polls/{id}/audit", middleware.WithLogging(logger, pollHandler.Audit))

	// Voting
	mux.HandleFunc("POST /polls/{id}/votes", middleware.WithLogging(logger, voteHandler.SubmitVote))

	// Leaderboard
	mux.HandleFunc("GET /leaderboard", middleware.WithLogging(logger, leaderboardHandler.GetLeaderboard))
	mux.HandleFunc("GET /polls/{id}/ranking", middleware.WithLogging(logger, leaderboardHandler.GetPollRanking))

	// Live updates
	mux.HandleFunc("GET /ws", middleware.WithLogging(logger, liveHandler.ServeWS))

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("livepoll API v1"))
	})

	return mux
}
