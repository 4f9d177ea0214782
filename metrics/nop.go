// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import "time"

// Nop discards all metrics.
type Nop struct{}

var _ Recorder = Nop{}

// NewNop returns a Recorder that discards everything.
func NewNop() Nop { return Nop{} }

func (Nop) RecordVote(string, time.Duration) {}
func (Nop) RecordTxRetry() {}
func (Nop) RecordEventPublished(int) {}
func (Nop) RecordEventDropped(string) {}
func (Nop) RecordEventConsumed(bool) {}
func (Nop) RecordRecompute(string, time.Duration, error) {}
func (Nop) RecordCacheLookup(bool) {}
func (Nop) SetSubscribers(int) {}
func (Nop) RecordBroadcast(int, int) {}
func (Nop) RecordAuditMismatch(string) {}
