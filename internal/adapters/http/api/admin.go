package api

import (
	"context"
	"net/http"

	"github.com/okian/huddle/internal/domain/freeze"
	"github.com/okian/huddle/internal/domain/reconcile"
	"github.com/okian/huddle/pkg/logger"
)

// AdminDependencies defines operator-triggered sweeps.
type AdminDependencies interface {
	Reconcile(ctx context.Context) (reconcile.Report, error)
	AutoFreeze(ctx context.Context) (freeze.AutoFreezeReport, error)
}

// AdminHandler runs the background sweeps on demand.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

// HandleReconcile handles POST /admin/reconcile.
func (h *AdminHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.Reconcile(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap("api.reconcile", err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleAutoFreeze handles POST /admin/auto-freeze.
func (h *AdminHandler) HandleAutoFreeze(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.AutoFreeze(r.Context())
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap("api.auto_freeze", err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
