// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livepoll/auth"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/logging"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
	"github.com/danielhkuo/livepoll/voting"
)

type PollHandler struct {
	store  *store.Store
	votes  *voting.Manager
	cfg    cliparse.Config
	logger *slog.Logger
}

func NewPollHandler(s *store.Store, votes *voting.Manager, cfg cliparse.Config, logger *slog.Logger) *PollHandler {
	return &PollHandler{store: s, votes: votes, cfg: cfg, logger: logging.OrDefault(logger)}
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePollRequest
	if err := middleware.ParseJSONBody(w, r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.ExpiredAt.IsZero() {
		middleware.ErrorResponse(w, http.StatusBadRequest, "expiredAt is required")
		return
	}

	poll, err := h.store.CreatePoll(r.Context(), req.Question, req.Options, req.ExpiredAt)
	if errors.Is(err, store.ErrInvalidPoll) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create poll", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to create poll")
		return
	}

	optionIDs := make([]string, len(poll.Options))
	for i, o := range poll.Options {
		optionIDs[i] = o.ID
	}

	middleware.JSONResponse(w, http.StatusCreated, models.CreatePollResponse{
		ID:        poll.ID,
		OptionIDs: optionIDs,
		AdminKey:  auth.GenerateAdminKey(poll.ID, h.cfg.AdminKeySalt),
	})
}

// GetPoll handles GET /polls/{id}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")

	result, err := h.votes.PollResult(r.Context(), pollID)
	if errors.Is(err, store.ErrPollNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load poll", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, result)
}

// Audit handles POST /polls/{id}/audit. Requires X-Admin-Key.
// An inconsistent poll is reported with 500 and the full report.
func (h *PollHandler) Audit(w http.ResponseWriter, r *http.Request) {
	pollID := r.PathValue("id")

	if err := auth.CheckRequest(r, pollID, h.cfg.AdminKeySalt); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid admin key")
		return
	}

	report, err := h.votes.Audit(r.Context(), pollID)
	switch {
	case errors.Is(err, store.ErrPollNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Poll not found")
	case errors.Is(err, voting.ErrCounterMismatch):
		middleware.JSONResponse(w, http.StatusInternalServerError, report)
	case err != nil:
		h.logger.Error("failed to audit poll", "poll_id", pollID, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
	default:
		middleware.JSONResponse(w, http.StatusOK, report)
	}
}
