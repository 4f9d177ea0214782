// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package leaderboard ranks the options of open polls and keeps the ranking
cached for readers and live subscribers.

# Ranking

Build turns the current polls into a Snapshot:

  - only options with at least one vote in a non-expired poll are ranked
  - percentage is the option's share of its poll total, rounded to two
    decimal places
  - ranks are dense by vote count: ties share a rank and the next count is
    one rank lower
  - order is vote count desc, percentage desc, then poll id and option id

Open polls are also ranked among themselves by total votes
(GetPollRanking).

# Caching

The Aggregator holds the current snapshot behind an atomic pointer, so
readers never see a partial update. A snapshot younger than the TTL (10s by
default) is returned as is. Vote events, queued with HandleEvent and
processed by Run, recompute immediately and push a LEADERBOARD_UPDATE to
the Notifier when the ranking changed. Duplicate events produce no extra
push.

If a recompute fails the previous snapshot is served until one succeeds.
*/
package leaderboard
