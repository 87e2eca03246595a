// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/okian/huddle/pkg/logger"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxBodyBytes          = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	GroupDependencies
	FreezeDependencies
	AttendanceDependencies
	StreakDependencies
	AdminDependencies
	StatsProvider
	HealthDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	eventsHandler     *EventsHandler
	groupsHandler     *GroupsHandler
	freezeHandler     *FreezeHandler
	attendanceHandler *AttendanceHandler
	streaksHandler    *StreaksHandler
	adminHandler      *AdminHandler

	corsOrigins    []string
	requestTimeout time.Duration
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		requestTimeout: defaultRequestTimeout,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.eventsHandler = NewEventsHandler(deps, s.logger)
	s.groupsHandler = NewGroupsHandler(deps, s.logger)
	s.freezeHandler = NewFreezeHandler(deps, s.logger)
	s.attendanceHandler = NewAttendanceHandler(deps, s.logger)
	s.streaksHandler = NewStreaksHandler(deps, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	return s
}

// Register attaches middleware and all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}
	r.Use(MetricsMiddleware)
	r.Use(LoggingMiddleware(s.logger))

	r.Get("/healthz", s.healthHandler.HandleMetrics)
	r.Get("/readyz", s.healthHandler.HandleReady)
	r.Get("/stats", s.statsHandler.HandleStats)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Put("/", s.eventsHandler.HandlePutEvent)
			r.Get("/", s.eventsHandler.HandleGetEvent)
			r.Post("/participants", s.attendanceHandler.HandleRegister)

			r.Post("/groups", s.groupsHandler.HandleAssemble)
			r.Get("/groups", s.groupsHandler.HandleList)

			r.Get("/freeze", s.freezeHandler.HandleStatus)
			r.Post("/guard", s.freezeHandler.HandleGuard)
			r.Post("/freeze", s.freezeHandler.HandleFreeze)
			r.Post("/unfreeze", s.freezeHandler.HandleUnfreeze)

			r.Post("/checkins", s.attendanceHandler.HandleCheckIn)
			r.Get("/checkins/{userID}", s.attendanceHandler.HandleHasCheckedIn)
			r.Get("/attendance", s.attendanceHandler.HandleSummary)
			r.Get("/checkin-token", s.attendanceHandler.HandleIssueToken)
		})
		r.Get("/groups/{groupID}", s.groupsHandler.HandleGet)
		r.Post("/checkin-tokens/validate", s.attendanceHandler.HandleValidateToken)

		r.Post("/streaks", s.streaksHandler.HandleUpdate)
		r.Get("/users/{userID}/streaks", s.streaksHandler.HandleGet)

		r.Post("/admin/reconcile", s.adminHandler.HandleReconcile)
		r.Post("/admin/auto-freeze", s.adminHandler.HandleAutoFreeze)
	})
}

// Handler returns a fresh router with every route registered.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	s.Register(ctx, r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps a classified error to its response. Internal details
// are logged, not returned.
func writeFailure(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		l.Error(ctx, "request failed",
			logger.String("requestID", middleware.GetReqID(ctx)),
			logger.Error(err),
		)
		writeError(w, status, code, nil)
		return
	}
	writeError(w, status, code, err)
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
