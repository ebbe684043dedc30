package api

import (
	"net/http"
	"strings"

	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/team"
)

// teamsHandler groups team and membership HTTP handlers.
type teamsHandler struct {
	svc *team.Service
}

func newTeamsHandler(svc *team.Service) *teamsHandler {
	return &teamsHandler{svc: svc}
}

type createTeamRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (req *createTeamRequest) normalize() { req.Name = strings.TrimSpace(req.Name) }

type addMemberRequest struct {
	UserID string    `json:"userId" validate:"required,uuid"`
	Role   team.Role `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER"`
}

type updateMemberRequest struct {
	Role team.Role `json:"role" validate:"required,oneof=OWNER ADMIN MEMBER"`
}

// CreateTeam handles POST /teams.
func (h *teamsHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	t, err := h.svc.Create(r.Context(), auth.UserIDFromContext(r.Context()), req.Name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "create", "team", t.ID, "name", t.Name)
	writeJSON(w, http.StatusCreated, map[string]any{"team": t})
}

// ListTeams handles GET /teams.
func (h *teamsHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.svc.ListMine(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if teams == nil {
		teams = []team.TeamWithRole{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

// ListMembers handles GET /teams/{teamId}/members.
func (h *teamsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	m := membershipFromContext(r.Context())
	members, err := h.svc.ListMembers(r.Context(), m.TeamID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if members == nil {
		members = []team.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// AddMember handles POST /teams/{teamId}/members.
func (h *teamsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	view, err := h.svc.AddMember(r.Context(), membershipFromContext(r.Context()), req.UserID, req.Role)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "add_member", "membership", req.UserID, "role", req.Role)
	writeJSON(w, http.StatusCreated, map[string]any{"membership": view})
}

// UpdateMember handles PATCH /teams/{teamId}/members/{userId}.
func (h *teamsHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	ids, err := uuidParams(r, "userId")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req updateMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	view, err := h.svc.UpdateMemberRole(r.Context(), membershipFromContext(r.Context()), ids[0], req.Role)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "update_member", "membership", ids[0], "role", req.Role)
	writeJSON(w, http.StatusOK, map[string]any{"membership": view})
}

// RemoveMember handles DELETE /teams/{teamId}/members/{userId}.
func (h *teamsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ids, err := uuidParams(r, "userId")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if err := h.svc.RemoveMember(r.Context(), membershipFromContext(r.Context()), ids[0]); err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "remove_member", "membership", ids[0])
	w.WriteHeader(http.StatusNoContent)
}
