// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/livepoll/models"
)

// MaxOptions bounds the number of options a poll may have.
const MaxOptions = 20

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Stats summarizes the store for the monitor command.
type Stats struct {
	Polls       int
	ActivePolls int
	Votes       int64
	Voters      int64
}

// CreatePoll validates and stores a poll with its options.
func (s *Store) CreatePoll(ctx context.Context, question string, options []string, expiresAt time.Time) (models.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Poll{}, fmt.Errorf("%w: question is required", ErrInvalidPoll)
	}
	if len(options) < 2 {
		return models.Poll{}, fmt.Errorf("%w: at least 2 options are required", ErrInvalidPoll)
	}
	if len(options) > MaxOptions {
		return models.Poll{}, fmt.Errorf("%w: at most %d options are allowed", ErrInvalidPoll, MaxOptions)
	}

	var poll models.Poll
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		now := s.Now()
		if !expiresAt.After(now) {
			return fmt.Errorf("%w: expiry must be in the future", ErrInvalidPoll)
		}

		poll = models.Poll{
			ID:        uuid.NewString(),
			Question:  question,
			CreatedAt: now,
			ExpiresAt: expiresAt.UTC(),
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO poll (id, question, total_votes, created_at, expires_at)
			VALUES ($1, $2, 0, $3, $4)
		`, poll.ID, poll.Question, poll.CreatedAt, poll.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}

		for i, text := range options {
			text = strings.TrimSpace(text)
			if text == "" {
				return fmt.Errorf("%w: option %d is empty", ErrInvalidPoll, i+1)
			}

			opt := models.Option{ID: uuid.NewString(), PollID: poll.ID, Text: text, Position: i}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO option (id, poll_id, text, position, vote_count)
				VALUES ($1, $2, $3, $4, 0)
			`, opt.ID, opt.PollID, opt.Text, opt.Position)
			if err != nil {
				return fmt.Errorf("failed to insert option: %w", err)
			}
			poll.Options = append(poll.Options, opt)
		}

		return nil
	})
	if err != nil {
		return models.Poll{}, err
	}

	s.logger.Info("poll created", "poll_id", poll.ID, "options", len(poll.Options), "expires_at", poll.ExpiresAt)

	return poll, nil
}

// GetPoll returns a poll with its options in display order. Transient read
// failures are retried under the store's policy.
func (s *Store) GetPoll(ctx context.Context, pollID string) (models.Poll, error) {
	var p models.Poll
	err := s.read(ctx, "get poll", func(ctx context.Context) error {
		var err error
		p, err = LoadPoll(ctx, s.db, pollID)
		return err
	})

	return p, err
}

// LoadPoll reads a poll and its options through q. It returns ErrPollNotFound
// when no poll has the given id.
func LoadPoll(ctx context.Context, q Querier, pollID string) (models.Poll, error) {
	var p models.Poll
	err := q.QueryRowContext(ctx, `
		SELECT id, question, total_votes, created_at, expires_at
		FROM poll WHERE id = $1
	`, pollID).Scan(&p.ID, &p.Question, &p.TotalVotes, &p.CreatedAt, &p.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Poll{}, ErrPollNotFound
	}
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to query poll: %w", err)
	}
	normalizeTimes(&p)

	rows, err := q.QueryContext(ctx, `
		SELECT id, poll_id, text, position, vote_count
		FROM option WHERE poll_id = $1
		ORDER BY position, id
	`, pollID)
	if err != nil {
		return models.Poll{}, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Position, &o.VoteCount); err != nil {
			return models.Poll{}, fmt.Errorf("failed to scan option: %w", err)
		}
		p.Options = append(p.Options, o)
	}
	if err := rows.Err(); err != nil {
		return models.Poll{}, fmt.Errorf("failed to read options: %w", err)
	}

	return p, nil
}

// ListPolls returns every poll with its options, ordered by poll id. Callers
// apply the expiry predicate themselves against Now. It makes a single
// attempt; the leaderboard retries it under its own policy.
func (s *Store) ListPolls(ctx context.Context) ([]models.Poll, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, total_votes, created_at, expires_at
		FROM poll ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query polls: %w", err)
	}

	var polls []models.Poll
	index := make(map[string]int)
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.Question, &p.TotalVotes, &p.CreatedAt, &p.ExpiresAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		normalizeTimes(&p)
		index[p.ID] = len(polls)
		polls = append(polls, p)
	}
	// Release the connection before the next query; SQLite pools hold one.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read polls: %w", err)
	}

	optRows, err := s.db.QueryContext(ctx, `
		SELECT id, poll_id, text, position, vote_count
		FROM option ORDER BY poll_id, position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o models.Option
		if err := optRows.Scan(&o.ID, &o.PollID, &o.Text, &o.Position, &o.VoteCount); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		if i, ok := index[o.PollID]; ok {
			polls[i].Options = append(polls[i].Options, o)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read options: %w", err)
	}

	return polls, nil
}

// Stats counts polls, active polls, votes and distinct voters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	polls, err := s.ListPolls(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Polls: len(polls)}
	now := s.Now()
	for _, p := range polls {
		if !p.Expired(now) {
			st.ActivePolls++
		}
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT voter_id) FROM vote
	`).Scan(&st.Votes, &st.Voters)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count votes: %w", err)
	}

	return st, nil
}

func normalizeTimes(p *models.Poll) {
	p.CreatedAt = p.CreatedAt.UTC()
	p.ExpiresAt = p.ExpiresAt.UTC()
}
