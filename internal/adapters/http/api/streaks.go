package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/internal/domain/streak"
	"github.com/okian/huddle/pkg/logger"
)

// StreakDependencies defines weekly streak operations.
type StreakDependencies interface {
	UpdateStreak(ctx context.Context, userID, orgID, category string) (streak.Result, error)
	GetStreak(ctx context.Context, userID, orgID, category string) (model.UserStreak, error)
}

// StreaksHandler handles streak updates and reads.
type StreaksHandler struct {
	deps   StreakDependencies
	logger logger.Logger
}

// NewStreaksHandler creates a new streaks handler.
func NewStreaksHandler(deps StreakDependencies, l logger.Logger) *StreaksHandler {
	return &StreaksHandler{deps: deps, logger: l}
}

// HandleUpdate handles POST /streaks. The body is a streak key.
func (h *StreaksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_streak"
	var key model.StreakKey
	if err := decodeJSON(r, &key); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.UpdateStreak(r.Context(), key.UserID, key.OrgID, key.Category)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGet handles GET /users/{userID}/streaks?org_id=&category=.
func (h *StreaksHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_streak"
	q := r.URL.Query()
	orgID := q.Get("org_id")
	if orgID == "" {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, errors.New("missing org_id")))
		return
	}
	st, err := h.deps.GetStreak(r.Context(), chi.URLParam(r, "userID"), orgID, q.Get("category"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
