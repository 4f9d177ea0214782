// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/metrics"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// ErrInvalidVote is returned for a submission without a voter or option.
var ErrInvalidVote = errors.New("invalid vote")

// Reason explains why a vote was rejected.
type Reason string

// Rejection reasons. None of them is transient.
const (
	PollNotFound   Reason = "POLL_NOT_FOUND"
	PollExpired    Reason = "POLL_EXPIRED"
	OptionNotFound Reason = "OPTION_NOT_FOUND"
	AlreadyVoted   Reason = "ALREADY_VOTED"
)

// Message is the human readable form of the reason.
func (r Reason) Message() string {
	switch r {
	case PollNotFound:
		return "Poll not found"
	case PollExpired:
		return "Poll has expired"
	case OptionNotFound:
		return "Option not found in this poll"
	case AlreadyVoted:
		return "User has already voted in this poll"
	default:
		return string(r)
	}
}

// Result is the outcome of SubmitVote: either the accepted vote, or a
// rejection reason.
type Result struct {
	Vote   models.Vote
	Reason Reason
}

// Accepted reports whether the vote was recorded.
func (r Result) Accepted() bool {
	return r.Reason == "" && r.Vote.ID != ""
}

func rejected(reason Reason) Result {
	return Result{Reason: reason}
}

// Publisher receives accepted votes after commit. Publish must not block.
type Publisher interface {
	Publish(event models.VoteEvent)
}

// errRejected aborts the transaction of a rejected vote.
var errRejected = errors.New("vote rejected")

// Manager records votes atomically with their counters.
type Manager struct {
	store     *store.Store
	publisher Publisher
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewManager creates a Manager. publisher may be nil, in which case accepted
// votes are not propagated.
func NewManager(s *store.Store, publisher Publisher, logger *slog.Logger, rec metrics.Recorder) *Manager {
	if rec == nil {
		rec = metrics.NewNop()
	}
	return &Manager{
		store:     s,
		publisher: publisher,
		logger:    logging.OrDefault(logger),
		metrics:   rec,
	}
}

// SubmitVote records voterID's vote for optionID in pollID.
//
// The checks and writes run in one transaction: the poll must exist and not
// be expired at the server clock, the option must belong to the poll, and the
// voter must not have voted in it yet. The vote row and both counters are
// written together. A uniqueness violation, whether raised by the insert or
// at commit, is reported as AlreadyVoted.
//
// A non-nil error means the store failed and the vote was not recorded.
// Once the transaction commits the vote stands, even if ctx is cancelled
// afterwards.
func (m *Manager) SubmitVote(ctx context.Context, pollID, optionID, voterID string) (Result, error) {
	if voterID == "" || optionID == "" {
		return Result{}, fmt.Errorf("%w: option and voter are required", ErrInvalidVote)
	}

	start := time.Now()
	var res Result

	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		res = Result{}
		now, err := m.store.TxNow(ctx, tx)
		if err != nil {
			return err
		}

		var expiresAt time.Time
		err = tx.QueryRowContext(ctx, `
			SELECT expires_at FROM poll WHERE id = $1
		`, pollID).Scan(&expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			res = rejected(PollNotFound)
			return errRejected
		}
		if err != nil {
			return fmt.Errorf("failed to query poll: %w", err)
		}

		if !now.Before(expiresAt) {
			res = rejected(PollExpired)
			return errRejected
		}

		var optionPollID string
		err = tx.QueryRowContext(ctx, `
			SELECT poll_id FROM option WHERE id = $1
		`, optionID).Scan(&optionPollID)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && optionPollID != pollID) {
			res = rejected(OptionNotFound)
			return errRejected
		}
		if err != nil {
			return fmt.Errorf("failed to query option: %w", err)
		}

		var prior int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM vote WHERE poll_id = $1 AND voter_id = $2
		`, pollID, voterID).Scan(&prior)
		if err != nil {
			return fmt.Errorf("failed to check prior vote: %w", err)
		}
		if prior > 0 {
			res = rejected(AlreadyVoted)
			return errRejected
		}

		vote := models.Vote{
			ID:        uuid.NewString(),
			PollID:    pollID,
			OptionID:  optionID,
			VoterID:   voterID,
			CreatedAt: now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vote (id, poll_id, option_id, voter_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, vote.ID, vote.PollID, vote.OptionID, vote.VoterID, vote.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				res = rejected(AlreadyVoted)
				return errRejected
			}
			return fmt.Errorf("failed to insert vote: %w", err)
		}

		if err := incrementCounters(ctx, tx, pollID, optionID); err != nil {
			return err
		}

		res = Result{Vote: vote}
		return nil
	})

	switch {
	case errors.Is(err, errRejected):
		// res holds the reason
	case err != nil && db.IsUniqueViolation(err):
		res = rejected(AlreadyVoted)
	case err != nil:
		m.metrics.RecordVote(metrics.OutcomeError, time.Since(start))
		m.logger.Error("vote failed", "poll_id", pollID, "option_id", optionID, "error", err)
		return Result{}, fmt.Errorf("failed to submit vote: %w", err)
	}

	if !res.Accepted() {
		m.metrics.RecordVote(string(res.Reason), time.Since(start))
		m.logger.Info("vote rejected", "poll_id", pollID, "option_id", optionID, "reason", res.Reason)
		return res, nil
	}

	m.metrics.RecordVote(metrics.OutcomeAccepted, time.Since(start))
	m.logger.Info("vote accepted", "poll_id", pollID, "option_id", optionID, "vote_id", res.Vote.ID)

	if m.publisher != nil {
		m.publisher.Publish(models.NewVoteEvent(res.Vote))
	}

	return res, nil
}

// PollResult returns the poll with every option's count and percentage.
func (m *Manager) PollResult(ctx context.Context, pollID string) (models.PollResult, error) {
	poll, err := m.store.GetPoll(ctx, pollID)
	if err != nil {
		return models.PollResult{}, err
	}

	return models.NewPollResult(poll), nil
}
