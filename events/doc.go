// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package events carries accepted votes from the vote path to the leaderboard
through a durable append log.

# Publishing

Publisher.Publish buffers a VOTE_RECORDED event and returns at once. A
worker appends it to the Log, retrying with exponential backoff (8 attempts
from 100ms, doubling, capped at 5s). Events that do not fit in the buffer
or still fail after the last attempt are dropped, logged at error level and
counted in events_dropped_total. A dropped event never affects the vote,
which is already committed.

# The Log

JetStreamLog stores events in the VOTES stream under
votes.recorded.<poll id>. The vote id is the message id, so retried appends
within the duplicate window are stored once. Subscribe creates a durable
pull consumer with explicit acks:

	sub, err := log.Subscribe(ctx, events.AllVotesTopic, "leaderboard",
		events.VoteHandler(aggregator.HandleEvent))
	defer sub.Stop()

A handler error naks the message for redelivery. Errors wrapping ErrPoison
terminate it. Delivery is at-least-once and unordered; consumers must
tolerate duplicates.
*/
package events
