package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/huddle/internal/domain/freeze"
	"github.com/okian/huddle/pkg/logger"
)

// FreezeDependencies defines the freeze lifecycle operations.
type FreezeDependencies interface {
	FreezeStatus(ctx context.Context, eventID string) (freeze.Status, error)
	CheckGuard(ctx context.Context, eventID, action string) (freeze.GuardResult, error)
	FreezeEventGroups(ctx context.Context, eventID, actor string) (freeze.Result, error)
	UnfreezeEventGroups(ctx context.Context, eventID string) (freeze.Result, error)
}

// FreezeHandler handles freeze status, guard and transitions.
type FreezeHandler struct {
	deps   FreezeDependencies
	logger logger.Logger
}

// NewFreezeHandler creates a new freeze handler.
func NewFreezeHandler(deps FreezeDependencies, l logger.Logger) *FreezeHandler {
	return &FreezeHandler{deps: deps, logger: l}
}

type guardRequest struct {
	Action string `json:"action"`
}

type freezeRequest struct {
	Actor string `json:"actor"`
}

// HandleStatus handles GET /events/{eventID}/freeze.
func (h *FreezeHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.freeze_status"
	st, err := h.deps.FreezeStatus(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleGuard handles POST /events/{eventID}/guard. A blocked action is a
// 200 with allowed=false.
func (h *FreezeHandler) HandleGuard(w http.ResponseWriter, r *http.Request) {
	const op = "api.check_guard"
	var req guardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Action == "" {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, errors.New("missing action")))
		return
	}
	res, err := h.deps.CheckGuard(r.Context(), chi.URLParam(r, "eventID"), req.Action)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleFreeze handles POST /events/{eventID}/freeze. A refusal by the
// override lock is a 200 with success=false.
func (h *FreezeHandler) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	const op = "api.freeze_groups"
	var req freezeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.FreezeEventGroups(r.Context(), chi.URLParam(r, "eventID"), req.Actor)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleUnfreeze handles POST /events/{eventID}/unfreeze.
func (h *FreezeHandler) HandleUnfreeze(w http.ResponseWriter, r *http.Request) {
	const op = "api.unfreeze_groups"
	res, err := h.deps.UnfreezeEventGroups(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
