// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package leaderboard

import (
	"cmp"
	"encoding/binary"
	"math"
	"slices"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/danielhkuo/livepoll/models"
)

// Snapshot is an immutable ranking of options and polls. It is replaced
// wholesale on every recompute and must not be modified after Build.
type Snapshot struct {
	// Entries holds every option with at least one vote in an open poll,
	// ordered by vote count, then percentage, then poll and option id.
	Entries []models.LeaderboardEntry
	// Standings ranks open polls by total votes.
	Standings  []models.PollStanding
	CapturedAt time.Time
	// Fingerprint hashes Entries and Standings; equal fingerprints mean an
	// unchanged ranking.
	Fingerprint uint64

	results map[string]models.PollResult
}

// Build ranks polls as of now. Expired polls are left out of the ranking but
// keep their per-poll results.
func Build(polls []models.Poll, now time.Time) *Snapshot {
	snap := &Snapshot{
		CapturedAt: now,
		results:    make(map[string]models.PollResult, len(polls)),
	}

	for _, p := range polls {
		snap.results[p.ID] = models.NewPollResult(p)
		if p.Expired(now) {
			continue
		}

		snap.Standings = append(snap.Standings, models.PollStanding{PollID: p.ID, TotalVotes: p.TotalVotes})
		for _, o := range p.Options {
			if o.VoteCount <= 0 {
				continue
			}
			snap.Entries = append(snap.Entries, models.LeaderboardEntry{
				PollID:       p.ID,
				PollQuestion: p.Question,
				OptionID:     o.ID,
				OptionText:   o.Text,
				VoteCount:    o.VoteCount,
				Percentage:   models.Percentage(o.VoteCount, p.TotalVotes),
			})
		}
	}

	slices.SortFunc(snap.Entries, func(a, b models.LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.VoteCount, a.VoteCount),
			cmp.Compare(b.Percentage, a.Percentage),
			cmp.Compare(a.PollID, b.PollID),
			cmp.Compare(a.OptionID, b.OptionID),
		)
	})
	rank, prev := 0, int64(-1)
	for i := range snap.Entries {
		if snap.Entries[i].VoteCount != prev {
			rank++
			prev = snap.Entries[i].VoteCount
		}
		snap.Entries[i].Rank = rank
	}

	slices.SortFunc(snap.Standings, func(a, b models.PollStanding) int {
		return cmp.Or(
			cmp.Compare(b.TotalVotes, a.TotalVotes),
			cmp.Compare(a.PollID, b.PollID),
		)
	})
	rank, prev = 0, -1
	for i := range snap.Standings {
		if snap.Standings[i].TotalVotes != prev {
			rank++
			prev = snap.Standings[i].TotalVotes
		}
		snap.Standings[i].Rank = rank
	}

	snap.Fingerprint = fingerprint(snap)

	return snap
}

// Top returns the entries ranked within limit, at most limit of them.
func (s *Snapshot) Top(limit int) []models.LeaderboardEntry {
	if limit <= 0 {
		return []models.LeaderboardEntry{}
	}
	out := make([]models.LeaderboardEntry, 0, min(limit, len(s.Entries)))
	for _, e := range s.Entries {
		if e.Rank > limit || len(out) == limit {
			break
		}
		out = append(out, e)
	}

	return out
}

// Ranking returns the standing of an open poll.
func (s *Snapshot) Ranking(pollID string) (models.PollRanking, bool) {
	for _, st := range s.Standings {
		if st.PollID == pollID {
			return models.PollRanking{PollID: pollID, Rank: st.Rank, TotalPolls: len(s.Standings)}, true
		}
	}

	return models.PollRanking{}, false
}

// PollResult returns the results of a poll known to the snapshot, expired
// or not.
func (s *Snapshot) PollResult(pollID string) (models.PollResult, bool) {
	r, ok := s.results[pollID]
	return r, ok
}

func fingerprint(s *Snapshot) uint64 {
	buf := make([]byte, 0, 64*(len(s.Entries)+len(s.Standings)))
	for _, e := range s.Entries {
		buf = append(buf, e.PollID...)
		buf = append(buf, 0)
		buf = append(buf, e.OptionID...)
		buf = append(buf, 0)
		buf = append(buf, e.OptionText...)
		buf = append(buf, 0)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.VoteCount))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e.Percentage))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Rank))
	}
	buf = append(buf, 0xff)
	for _, st := range s.Standings {
		buf = append(buf, st.PollID...)
		buf = append(buf, 0)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(st.TotalVotes))
		buf = binary.LittleEndian.AppendUint64(buf, uint64(st.Rank))
	}

	return xxh3.Hash(buf)
}
