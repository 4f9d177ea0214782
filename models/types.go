package models

import "time"

// Event type tags
const (
	EventVoteRecorded      = "VOTE_RECORDED"
	EventLeaderboardUpdate = "LEADERBOARD_UPDATE"
)

// Request types

type CreatePollRequest struct {
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	ExpiredAt time.Time `json:"expiredAt"`
}

type SubmitVoteRequest struct {
	OptionID string `json:"optionId"`
	UserID   string `json:"userId"`
}

// LiveVoteMessage is an inbound vote sent over a live connection.
type LiveVoteMessage struct {
	PollID   string `json:"pollId"`
	OptionID string `json:"optionId"`
	UserID   string `json:"userId"`
}

// Response types

type CreatePollResponse struct {
	ID        string   `json:"id"`
	OptionIDs []string `json:"optionIds"`
	AdminKey  string   `json:"adminKey"`
}

type SubmitVoteResponse struct {
	VoteID  string `json:"voteId"`
	Message string `json:"message"`
}

// LiveReply answers a LiveVoteMessage.
type LiveReply struct {
	Status  string              `json:"status"`
	Data    *SubmitVoteResponse `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
}

type LeaderboardResponse struct {
	Data       []LeaderboardEntry `json:"data"`
	CapturedAt time.Time          `json:"timestamp"`
}

// Domain types

type Poll struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	TotalVotes int64     `json:"totalVotes"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiredAt"`
	Options    []Option  `json:"options,omitempty"`
}

// Expired reports whether the poll no longer accepts votes at now.
func (p Poll) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type Option struct {
	ID        string `json:"id"`
	PollID    string `json:"pollId"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
	VoteCount int64  `json:"votes"`
}

type Vote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"pollId"`
	OptionID  string    `json:"optionId"`
	VoterID   string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// OptionResult is an option with its share of the poll total.
type OptionResult struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Votes      int64   `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type PollResult struct {
	ID         string         `json:"id"`
	Question   string         `json:"question"`
	TotalVotes int64          `json:"totalVotes"`
	Options    []OptionResult `json:"options"`
	CreatedAt  time.Time      `json:"createdAt"`
	ExpiresAt  time.Time      `json:"expiredAt"`
}

// Leaderboard types

type LeaderboardEntry struct {
	PollID       string  `json:"pollId"`
	PollQuestion string  `json:"pollQuestion"`
	OptionID     string  `json:"optionId"`
	OptionText   string  `json:"optionText"`
	VoteCount    int64   `json:"voteCount"`
	Percentage   float64 `json:"percentage"`
	Rank         int     `json:"rank"`
}

// PollStanding is a poll's position among all active polls.
type PollStanding struct {
	PollID     string `json:"pollId"`
	TotalVotes int64  `json:"totalVotes"`
	Rank       int    `json:"rank"`
}

type PollRanking struct {
	PollID     string `json:"pollId"`
	Rank       int    `json:"rank"`
	TotalPolls int    `json:"totalPolls"`
}

// VoteEvent is the payload appended to the durable log for every accepted vote.
type VoteEvent struct {
	Type      string    `json:"type"`
	VoteID    string    `json:"voteId"`
	PollID    string    `json:"pollId"`
	OptionID  string    `json:"optionId"`
	VoterID   string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVoteEvent builds the VOTE_RECORDED event for an accepted vote.
func NewVoteEvent(v Vote) VoteEvent {
	return VoteEvent{
		Type:      EventVoteRecorded,
		VoteID:    v.ID,
		PollID:    v.PollID,
		OptionID:  v.OptionID,
		VoterID:   v.VoterID,
		Timestamp: v.CreatedAt,
	}
}

// LeaderboardUpdate is pushed to live subscribers after every recompute
// that changes the ranking.
type LeaderboardUpdate struct {
	Type  string              `json:"type"`
	Data  LeaderboardResponse `json:"data"`
	Polls []PollResult        `json:"polls,omitempty"`
}

// Audit types

type OptionAudit struct {
	OptionID string `json:"optionId"`
	Counter  int64  `json:"counter"`
	Ledger   int64  `json:"ledger"`
}

type AuditReport struct {
	PollID      string        `json:"pollId"`
	PollCounter int64         `json:"pollCounter"`
	OptionSum   int64         `json:"optionSum"`
	LedgerCount int64         `json:"ledgerCount"`
	Options     []OptionAudit `json:"options"`
	Consistent  bool          `json:"consistent"`
	CheckedAt   time.Time     `json:"checkedAt"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
