package models

import "math"

// Percentage returns votes as a share of total, in percent rounded to two
// decimal places. A zero total yields 0.
func Percentage(votes, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(votes)*10000/float64(total)) / 100
}

// NewPollResult annotates each option of p with its percentage of the poll
// total. Options keep their display order.
func NewPollResult(p Poll) PollResult {
	res := PollResult{
		ID:         p.ID,
		Question:   p.Question,
		TotalVotes: p.TotalVotes,
		Options:    make([]OptionResult, 0, len(p.Options)),
		CreatedAt:  p.CreatedAt,
		ExpiresAt:  p.ExpiresAt,
	}
	for _, o := range p.Options {
		res.Options = append(res.Options, OptionResult{
			ID:         o.ID,
			Text:       o.Text,
			Votes:      o.VoteCount,
			Percentage: Percentage(o.VoteCount, p.TotalVotes),
		})
	}

	return res
}
