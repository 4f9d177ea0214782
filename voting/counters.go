// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// ErrCounterMismatch means the incremental counters of a poll disagree with
// its vote ledger. Counters are never repaired automatically.
var ErrCounterMismatch = errors.New("counters disagree with vote ledger")

// Tally is a poll's vote count derived from the ledger alone.
type Tally struct {
	PollID  string
	Total   int64
	Options map[string]int64
}

// incrementCounters adds one vote to the option and its poll. It must run in
// the transaction that inserted the vote; calling it twice for one vote
// double counts.
func incrementCounters(ctx context.Context, tx *sql.Tx, pollID, optionID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE option SET vote_count = vote_count + 1 WHERE id = $1 AND poll_id = $2
	`, optionID, pollID)
	if err != nil {
		return fmt.Errorf("failed to increment option counter: %w", err)
	}
	if err := expectOneRow(res, "option", optionID); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE poll SET total_votes = total_votes + 1 WHERE id = $1
	`, pollID)
	if err != nil {
		return fmt.Errorf("failed to increment poll counter: %w", err)
	}

	return expectOneRow(res, "poll", pollID)
}

func expectOneRow(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("counter update on %s %s touched %d rows", table, id, n)
	}
	return nil
}

// ledgerCounts sums the ledger per option for one poll.
func ledgerCounts(ctx context.Context, q store.Querier, pollID string) (map[string]int64, int64, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT option_id, COUNT(*) FROM vote WHERE poll_id = $1 GROUP BY option_id
	`, pollID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	var total int64
	for rows.Next() {
		var optionID string
		var n int64
		if err := rows.Scan(&optionID, &n); err != nil {
			return nil, 0, fmt.Errorf("failed to scan vote count: %w", err)
		}
		counts[optionID] = n
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read vote counts: %w", err)
	}

	return counts, total, nil
}

// Recompute derives the poll's counts from the vote ledger. Options without
// votes are present with a zero count.
func (m *Manager) Recompute(ctx context.Context, pollID string) (Tally, error) {
	var tally Tally
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		poll, err := store.LoadPoll(ctx, tx, pollID)
		if err != nil {
			return err
		}

		counts, total, err := ledgerCounts(ctx, tx, pollID)
		if err != nil {
			return err
		}

		tally = Tally{PollID: pollID, Total: total, Options: make(map[string]int64, len(poll.Options))}
		for _, o := range poll.Options {
			tally.Options[o.ID] = counts[o.ID]
		}
		return nil
	})
	if err != nil {
		return Tally{}, err
	}

	return tally, nil
}

// Audit compares the poll's counters with its ledger. On disagreement it
// returns the report together with an error wrapping ErrCounterMismatch.
func (m *Manager) Audit(ctx context.Context, pollID string) (models.AuditReport, error) {
	var report models.AuditReport
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		poll, err := store.LoadPoll(ctx, tx, pollID)
		if err != nil {
			return err
		}

		counts, total, err := ledgerCounts(ctx, tx, pollID)
		if err != nil {
			return err
		}

		report = buildReport(poll, counts, total)
		report.CheckedAt = m.store.Now()
		return nil
	})
	if err != nil {
		return models.AuditReport{}, err
	}

	if !report.Consistent {
		m.metrics.RecordAuditMismatch(pollID)
		m.logger.Error("counter audit failed",
			"poll_id", pollID,
			"poll_counter", report.PollCounter,
			"option_sum", report.OptionSum,
			"ledger", report.LedgerCount,
		)
		return report, fmt.Errorf("%w: poll %s", ErrCounterMismatch, pollID)
	}

	m.logger.Debug("counter audit passed", "poll_id", pollID, "votes", report.LedgerCount)

	return report, nil
}

// AuditAll audits every poll. The returned error wraps ErrCounterMismatch if
// any poll is inconsistent; reports are returned for all polls either way.
func (m *Manager) AuditAll(ctx context.Context) ([]models.AuditReport, error) {
	polls, err := m.store.ListPolls(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]models.AuditReport, 0, len(polls))
	var mismatched []error
	for _, p := range polls {
		report, err := m.Audit(ctx, p.ID)
		if err != nil && !errors.Is(err, ErrCounterMismatch) {
			return reports, err
		}
		if err != nil {
			mismatched = append(mismatched, err)
		}
		reports = append(reports, report)
	}

	return reports, errors.Join(mismatched...)
}

func buildReport(poll models.Poll, ledger map[string]int64, ledgerTotal int64) models.AuditReport {
	report := models.AuditReport{
		PollID:      poll.ID,
		PollCounter: poll.TotalVotes,
		LedgerCount: ledgerTotal,
		Options:     make([]models.OptionAudit, 0, len(poll.Options)),
		Consistent:  true,
	}

	for _, o := range poll.Options {
		oa := models.OptionAudit{OptionID: o.ID, Counter: o.VoteCount, Ledger: ledger[o.ID]}
		report.OptionSum += o.VoteCount
		if oa.Counter != oa.Ledger {
			report.Consistent = false
		}
		report.Options = append(report.Options, oa)
	}

	if report.PollCounter != report.OptionSum || report.OptionSum != report.LedgerCount {
		report.Consistent = false
	}

	return report
}
