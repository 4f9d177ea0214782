// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the livepoll API.

# Handler Types

Each handler is a struct built from the engine components it needs:

  - PollHandler: create poll, poll results, counter audit
  - VoteHandler: vote submission
  - LeaderboardHandler: top options and poll ranking
  - LiveHandler: websocket subscription and live votes

	pollHandler := handlers.NewPollHandler(st, votes, cfg, logger)

# Voting

	POST /polls/{id}/votes {"optionId": "...", "userId": "..."}

Responses:

  - 201 vote recorded
  - 404 unknown poll, or option not in the poll
  - 409 the user already voted in this poll
  - 410 the poll has expired
  - 422 optionId or userId missing
  - 400 malformed JSON

# Audit

POST /polls/{id}/audit compares the counters with the vote ledger. It
requires the X-Admin-Key returned when the poll was created and answers 500
with the report when they disagree.

# Live Updates

GET /ws upgrades to a websocket. The connection gets the current
leaderboard, then a LEADERBOARD_UPDATE whenever the ranking changes. Votes
sent on the socket are answered with {"status": "success", "data": ...} or
{"status": "error", "message": ...}.
*/
package handlers
