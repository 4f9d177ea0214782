// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package store is the durable record of polls and their options.

Polls are created once and afterwards only their counters change. Expiry is
a read-time predicate evaluated against the server clock, so a poll never
transitions state in the database. Inside a transaction Store.TxNow reads
that clock from PostgreSQL itself; elsewhere Store.Now uses the process
clock.

# Transactions

WithTx runs a function inside a transaction at the dialect's isolation
level (SERIALIZABLE on PostgreSQL) and re-runs it when the driver reports a
transient failure such as a serialization conflict or SQLITE_BUSY:

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		poll, err := store.LoadPoll(ctx, tx, pollID)
		...
	})

The function may run more than once and must not keep state between runs.
*/
package store
