// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/testutil"
)

// TestFullVotingWorkflow tests the complete workflow:
// 1. Create poll
// 2. Voters vote
// 3. A repeat vote is refused
// 4. Results and leaderboard agree
// 5. Audit passes with the admin key
func TestFullVotingWorkflow(t *testing.T) {
	f := newFixture(t)

	// Step 1: Create a poll
	w := httptest.NewRecorder()
	f.polls.CreatePoll(w, testutil.MakeRequest("POST", "/polls", models.CreatePollRequest{
		Question:  "Where should we eat?",
		Options:   []string{"Tacos", "Ramen", "Pizza"},
		ExpiredAt: time.Now().Add(time.Hour),
	}, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("Step 1 - Create poll failed: %d - %s", w.Code, w.Body.String())
	}

	var created models.CreatePollResponse
	testutil.AssertJSON(t, w, &created)
	pollID := created.ID
	tacos, ramen := created.OptionIDs[0], created.OptionIDs[1]
	t.Logf("Step 1 - Created poll: %s", pollID)

	// Step 2: Voters vote
	votes := map[string]string{"alice": tacos, "bob": tacos, "carol": ramen}
	for voter, option := range votes {
		w := f.submitVote(pollID, models.SubmitVoteRequest{OptionID: option, UserID: voter})
		if w.Code != http.StatusCreated {
			t.Fatalf("Step 2 - %s vote failed: %d - %s", voter, w.Code, w.Body.String())
		}
	}

	// Step 3: A repeat vote is refused
	w = f.submitVote(pollID, models.SubmitVoteRequest{OptionID: ramen, UserID: "alice"})
	if w.Code != http.StatusConflict {
		t.Fatalf("Step 3 - Expected 409, got %d", w.Code)
	}

	// Step 4: Results and leaderboard agree
	req := testutil.MakeRequest("GET", "/polls/"+pollID, nil, nil)
	req.SetPathValue("id", pollID)
	w = httptest.NewRecorder()
	f.polls.GetPoll(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var result models.PollResult
	testutil.AssertJSON(t, w, &result)
	if result.TotalVotes != 3 || result.Options[0].Votes != 2 || result.Options[0].Percentage != 66.67 {
		t.Errorf("Step 4 - Unexpected results %+v", result)
	}

	w = f.getLeaderboard("?limit=1")
	var board models.LeaderboardResponse
	testutil.AssertJSON(t, w, &board)
	if len(board.Data) != 1 || board.Data[0].OptionID != tacos || board.Data[0].VoteCount != 2 {
		t.Errorf("Step 4 - Unexpected leaderboard %+v", board.Data)
	}

	// Step 5: Audit passes
	req = testutil.MakeRequest("POST", "/polls/"+pollID+"/audit", nil, map[string]string{
		auth.AdminKeyHeader: created.AdminKey,
	})
	req.SetPathValue("id", pollID)
	w = httptest.NewRecorder()
	f.polls.Audit(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)

	var report models.AuditReport
	testutil.AssertJSON(t, w, &report)
	if !report.Consistent || report.LedgerCount != 3 {
		t.Errorf("Step 5 - Unexpected audit %+v", report)
	}
}
