// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles database connections, schema creation, and driver error
classification.

# Connecting

Open selects the driver from the configured database type:

	conn, dialect, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)

PostgreSQL (lib/pq) is the production target. SQLite (modernc.org/sqlite)
is used for development and tests; its pool is limited to one connection so
write transactions never interleave.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - poll: question, expiry, aggregate vote total
  - option: option text and per-option vote counter
  - vote: the vote ledger

# Relationships

	poll 1──* option
	poll 1──* vote
	option 1──* vote

# Constraints

  - vote.(poll_id, voter_id) is UNIQUE: one vote per voter per poll
  - poll.total_votes and option.vote_count are never negative
  - poll.expires_at must be after poll.created_at

# Errors

IsUniqueViolation and IsTransient inspect *pq.Error and *sqlite.Error so
callers can map a duplicate vote to a rejection and retry serialization
conflicts.
*/
package db
