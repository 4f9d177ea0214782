// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, domain, and event types shared by
the engine and the API.

# Request Types

Types for parsing incoming JSON:

  - CreatePollRequest: question, options, expiredAt
  - SubmitVoteRequest: optionId, userId
  - LiveVoteMessage: pollId, optionId, userId (sent over /ws)

# Response Types

  - CreatePollResponse: id, optionIds, adminKey
  - SubmitVoteResponse: voteId, message
  - LiveReply: status, data, message
  - LeaderboardResponse: data, timestamp
  - ErrorResponse: error, message

# Domain Types

  - Poll: question, expiry, aggregate vote total
  - Option: display text and vote counter
  - Vote: one voter's immutable choice; (pollId, userId) is unique
  - PollResult / OptionResult: counts with two-decimal percentages
  - LeaderboardEntry: ranked option across all active polls
  - PollStanding / PollRanking: a poll's dense rank among active polls
  - AuditReport: counters compared with the vote ledger

# Events

VoteEvent is the VOTE_RECORDED payload appended to the durable log after a
vote commits. LeaderboardUpdate is the LEADERBOARD_UPDATE payload pushed to
live subscribers.
*/
package models
