package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
)

// GroupDependencies defines the group operations used by the handler.
type GroupDependencies interface {
	AssembleGroups(ctx context.Context, eventID string, candidates []model.Candidate, size int) (model.AssembleResult, error)
	ListGroups(ctx context.Context, eventID string) ([]model.Group, error)
	GetGroup(ctx context.Context, groupID string) (model.GroupDetail, error)
}

// GroupsHandler handles group assembly and reads.
type GroupsHandler struct {
	deps   GroupDependencies
	logger logger.Logger
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(deps GroupDependencies, l logger.Logger) *GroupsHandler {
	return &GroupsHandler{deps: deps, logger: l}
}

type candidateRequest struct {
	UserID       string   `json:"user_id"`
	Interests    []string `json:"interests"`
	SocialEnergy int      `json:"social_energy"`
	City         string   `json:"city"`
}

type assembleRequest struct {
	Size       int                `json:"size"`
	Candidates []candidateRequest `json:"candidates"`
}

func (a assembleRequest) candidates() []model.Candidate {
	out := make([]model.Candidate, len(a.Candidates))
	for i, c := range a.Candidates {
		out[i] = model.Candidate{
			UserID: c.UserID,
			Profile: model.Profile{
				UserID:       c.UserID,
				Interests:    c.Interests,
				SocialEnergy: c.SocialEnergy,
				City:         c.City,
			},
		}
	}
	return out
}

// HandleAssemble handles POST /events/{eventID}/groups. Created groups are
// answered with 201; a blocked freeze guard with 200 and a reason.
func (h *GroupsHandler) HandleAssemble(w http.ResponseWriter, r *http.Request) {
	const op = "api.assemble_groups"
	var req assembleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Size < 0 {
		writeFailure(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, errors.New("size must not be negative")))
		return
	}
	res, err := h.deps.AssembleGroups(r.Context(), chi.URLParam(r, "eventID"), req.candidates(), req.Size)
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if res.Assembled && res.Created() > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// HandleList handles GET /events/{eventID}/groups.
func (h *GroupsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_groups"
	groups, err := h.deps.ListGroups(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// HandleGet handles GET /groups/{groupID}.
func (h *GroupsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_group"
	detail, err := h.deps.GetGroup(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		writeFailure(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
