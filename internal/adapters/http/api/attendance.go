package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/huddle/internal/domain/attendance"
	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
)

// AttendanceDependencies defines registration, check-in and token operations.
type AttendanceDependencies interface {
	RegisterParticipant(ctx context.Context, eventID, userID string) error
	CheckIn(ctx context.Context, req model.CheckInRequest) (attendance.CheckInResult, error)
	HasCheckedIn(ctx context.Context, userID, eventID string) (bool, error)
	AttendanceSummary(ctx context.Context, eventID string) (model.AttendanceSummary, error)
	IssueToken(ctx context.Context, eventID string) (attendance.Token, error)
	ValidateToken(ctx context.Context, raw string) (attendance.TokenStatus, error)
}

// AttendanceHandler handles participants, check-ins and check-in tokens.
type AttendanceHandler struct {
	deps   AttendanceDependencies
	logger logger.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(deps AttendanceDependencies, l logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{deps: deps, logger: l}
}

type participantRequest struct {
	UserID string `json:"user_id"`
}

type checkInRequest struct {
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	Category string `json:"category"`
	Token    string `json:"token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	attendance.Token
	QR string `json:"qr"`
}

// HandleRegister handles POST /events/{eventID}/participants.
func (h *AttendanceHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_participant"
	var req participantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.UserID == "" {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, errors.New("missing user_id")))
		return
	}
	eventID := chi.URLParam(r, "eventID")
	if err := h.deps.RegisterParticipant(r.Context(), eventID, req.UserID); err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, model.Participant{
		EventID:          eventID,
		UserID:           req.UserID,
		AttendanceStatus: model.AttendanceRegistered,
	})
}

// HandleCheckIn handles POST /events/{eventID}/checkins. Window and
// duplicate outcomes are answered with 200; the body says what happened.
func (h *AttendanceHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	const op = "api.check_in"
	var req checkInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.CheckIn(r.Context(), model.CheckInRequest{
		UserID:   req.UserID,
		EventID:  chi.URLParam(r, "eventID"),
		OrgID:    req.OrgID,
		Category: req.Category,
		Token:    req.Token,
	})
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleHasCheckedIn handles GET /events/{eventID}/checkins/{userID}.
func (h *AttendanceHandler) HandleHasCheckedIn(w http.ResponseWriter, r *http.Request) {
	const op = "api.has_checked_in"
	userID, eventID := chi.URLParam(r, "userID"), chi.URLParam(r, "eventID")
	ok, err := h.deps.HasCheckedIn(r.Context(), userID, eventID)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":       eventID,
		"user_id":        userID,
		"has_checked_in": ok,
	})
}

// HandleSummary handles GET /events/{eventID}/attendance.
func (h *AttendanceHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.attendance_summary"
	sum, err := h.deps.AttendanceSummary(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleIssueToken handles GET /events/{eventID}/checkin-token. The qr field
// carries the encoded payload meant for a QR code.
func (h *AttendanceHandler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	const op = "api.issue_token"
	tok, err := h.deps.IssueToken(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, QR: tok.String()})
}

// HandleValidateToken handles POST /checkin-tokens/validate.
func (h *AttendanceHandler) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	const op = "api.validate_token"
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Token == "" {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, errors.New("missing token")))
		return
	}
	st, err := h.deps.ValidateToken(r.Context(), req.Token)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
