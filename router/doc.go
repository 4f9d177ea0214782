// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the livepoll API.

# Route Registration

NewRouter creates a configured http.ServeMux over a running engine:

	mux := router.NewRouter(eng, cfg, logger, registry)

# Endpoints

Health:

	GET /health

Polls:

	POST /polls              - Create poll, returns the admin key
	GET  /polls/{id}         - Counts and percentages
	POST /polls/{id}/audit   - Compare counters with the ledger (X-Admin-Key)

Voting:

	POST /polls/{id}/votes - Cast one vote per user

Leaderboard:

	GET /leaderboard?limit=N  - Top options across active polls
	GET /polls/{id}/ranking   - A poll's rank by total votes

Live:

	GET /ws - Websocket with leaderboard pushes and vote submission

Metrics:

	GET /metrics - Prometheus exposition, when a gatherer is given

Every API route except /health and /metrics is wrapped with
middleware.WithLogging.
*/
package router
