// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package voting records votes and keeps the poll counters consistent with the
vote ledger.

# Submitting Votes

Manager.SubmitVote runs the whole submission in one transaction:

 1. the poll exists
 2. the poll has not expired at the server clock
 3. the option belongs to the poll
 4. the voter has not voted in this poll
 5. insert the vote, increment the option and poll counters

A failed check produces a rejected Result with one of PollNotFound,
PollExpired, OptionNotFound or AlreadyVoted. Rejections are ordinary
outcomes and are returned with a nil error:

	res, err := manager.SubmitVote(ctx, pollID, optionID, voterID)
	if err != nil {
		// store failure, vote not recorded
	}
	if !res.Accepted() {
		// res.Reason
	}

The UNIQUE (poll_id, voter_id) constraint on the vote table backs the prior
vote check. When two submissions from one voter race, the loser hits the
constraint (or a serialization failure, which is retried and then sees the
winner's vote) and gets AlreadyVoted.

After commit the vote is handed to the Publisher. Publishing never affects
the result.

# Audits

Recompute sums the ledger for a poll. Audit compares that sum with the
incremental counters and returns ErrCounterMismatch on any disagreement.
Counters are never rewritten by an audit.
*/
package voting
