// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics records engine metrics.
//
// Components depend on the Recorder interface; Nop discards everything and
// Prometheus exports through client_golang.
package metrics

import "time"

// Vote outcomes recorded by RecordVote.
const (
	OutcomeAccepted = "accepted"
	OutcomeError    = "error"
)

// Event drop reasons recorded by RecordEventDropped.
const (
	DropBufferFull       = "buffer_full"
	DropRetriesExhausted = "retries_exhausted"
	DropStopped          = "stopped"
)

// Recorder receives engine measurements. Implementations must be safe for
// concurrent use and must not block.
type Recorder interface {
	// RecordVote records a vote submission outcome ("accepted", "error", or
	// a rejection reason) and its latency.
	RecordVote(outcome string, duration time.Duration)

	// RecordTxRetry records a retried vote transaction.
	RecordTxRetry()

	// RecordEventPublished records a successful append to the log.
	RecordEventPublished(attempts int)

	// RecordEventDropped records an event that was never appended.
	RecordEventDropped(reason string)

	// RecordEventConsumed records an event delivered by the log.
	RecordEventConsumed(coalesced bool)

	// RecordRecompute records a leaderboard recompute.
	RecordRecompute(trigger string, duration time.Duration, err error)

	// RecordCacheLookup records a leaderboard cache hit or miss.
	RecordCacheLookup(hit bool)

	// SetSubscribers sets the current number of live subscribers.
	SetSubscribers(n int)

	// RecordBroadcast records a broadcast's deliveries and failures.
	RecordBroadcast(delivered, failed int)

	// RecordAuditMismatch records a poll whose counters disagree with the ledger.
	RecordAuditMismatch(pollID string)
}
