// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/voting"
)

// VoteRecordedMessage is returned with every accepted vote.
const VoteRecordedMessage = "Vote recorded"

type VoteHandler struct {
	votes  *voting.Manager
	logger *slog.Logger
}

func NewVoteHandler(votes *voting.Manager, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logging.OrDefault(logger)}
}

// StatusForReason maps a rejection to its HTTP status.
func StatusForReason(reason voting.Reason) int {
	switch reason {
	case voting.PollNotFound, voting.OptionNotFound:
		return http.StatusNotFound
	case voting.PollExpired:
		return http.StatusGone
	case voting.AlreadyVoted:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// SubmitVote handles POST /polls/{id}/votes
func (h *VoteHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")

	var req models.SubmitVoteRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	res, err := h.votes.SubmitVote(r.Context(), pollID, req.OptionID, req.UserID)
	if errors.Is(err, voting.ErrInvalidVote) {
		middleware.ErrorResponse(w, http.StatusUnprocessableEntity, "optionId and userId are required")
		return
	}
	if err != nil {
		h.logger.Error("failed to submit vote", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to record vote")
		return
	}

	if !res.Accepted() {
		middleware.ErrorResponse(w, StatusForReason(res.Reason), res.Reason.Message())
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.SubmitVoteResponse{
		VoteID:  res.Vote.ID,
		Message: VoteRecordedMessage,
	})
}
