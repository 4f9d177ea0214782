// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the livepoll command.

livepoll runs timed polls where each user votes once per poll. Accepted
votes are appended to a NATS JetStream log, which drives a cached
leaderboard that is pushed to websocket subscribers.

# Commands

	livepoll serve                       # HTTP API, websocket and metrics
	livepoll audit [--poll ID]           # compare counters with the ledger
	livepoll seed --polls 50 --options 4 --votes 100
	livepoll monitor --interval 5s

Running with an embedded NATS server and SQLite:

	ADMIN_KEY_SALT=dev go run . serve -d livepoll.db --nats-embedded

# Configuration

Flags win over environment variables, which win over the YAML file given
with --config. A .env file fills in unset environment variables.

Required settings:

  - DATABASE_URL (-d): PostgreSQL URL or SQLite file
  - ADMIN_KEY_SALT (--admin-salt): Secret for admin key HMAC (serve only)
  - NATS_URL (--nats-url), or --nats-embedded (serve only)

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - DATABASE_TYPE (-t): sqlite or postgres (default: sqlite)
  - LEADERBOARD_TTL (--leaderboard-ttl): Snapshot lifetime (default: 10s)
  - LOG_LEVEL, LOG_FORMAT: slog level and text or json output

# Architecture

  - voting: one-vote-per-user transactions and counter audits
  - events: JetStream log and the asynchronous vote publisher
  - leaderboard: cached ranking across active polls
  - broadcast: fan-out to live connections
  - engine: wires the components above and runs their workers
  - store, db: polls and votes over PostgreSQL or SQLite
  - handlers, router, middleware: HTTP API
  - cliparse, logging, metrics: configuration, slog, Prometheus

See package documentation for each component.
*/
package main
