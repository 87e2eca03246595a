package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
)

// EventDependencies defines the event operations used by the handler.
type EventDependencies interface {
	UpsertEvent(ctx context.Context, e model.Event) error
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps   EventDependencies
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, l logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, logger: l}
}

// eventRequest mirrors the OpenAPI schema for PUT /events/{eventID}.
type eventRequest struct {
	OrgID              string `json:"org_id"`
	StartsAt           string `json:"starts_at"`
	FreezeHoursBefore  int    `json:"freeze_hours_before"`
	FreezeOverrideLock bool   `json:"freeze_override_lock"`
}

func (e eventRequest) toModel(id string) (model.Event, error) {
	if strings.TrimSpace(e.OrgID) == "" {
		return model.Event{}, errors.New("missing org_id")
	}
	startsAt, err := time.Parse(time.RFC3339, e.StartsAt)
	if err != nil {
		return model.Event{}, errors.New("invalid starts_at; must be RFC3339")
	}
	return model.Event{
		ID:                 id,
		OrgID:              e.OrgID,
		StartsAt:           startsAt.UTC(),
		FreezeHoursBefore:  e.FreezeHoursBefore,
		FreezeOverrideLock: e.FreezeOverrideLock,
	}, nil
}

// HandlePutEvent handles PUT /events/{eventID}.
func (h *EventsHandler) HandlePutEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_event"
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	e, err := req.toModel(chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.UpsertEvent(r.Context(), e); err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	stored, err := h.deps.GetEvent(r.Context(), e.ID)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// HandleGetEvent handles GET /events/{eventID}.
func (h *EventsHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_event"
	e, err := h.deps.GetEvent(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, e)
}
