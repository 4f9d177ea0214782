// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package engine assembles the vote and leaderboard components and owns their
lifecycle.

	e := engine.New(st, log, engine.Config{LeaderboardTTL: 10 * time.Second})
	if err := e.Start(ctx); err != nil {
		return err
	}
	defer e.Stop(shutdownCtx)

	res, err := e.Votes.SubmitVote(ctx, pollID, optionID, voterID)

An accepted vote is handed to the publisher after commit, appended to the
log, delivered back to the leaderboard through a durable consumer, and
pushed to every registered subscriber once the ranking changes.
*/
package engine
