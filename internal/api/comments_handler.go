package api

import (
	"net/http"
	"strings"

	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/comment"
)

// commentsHandler groups comment HTTP handlers.
type commentsHandler struct {
	svc *comment.Service
}

func newCommentsHandler(svc *comment.Service) *commentsHandler {
	return &commentsHandler{svc: svc}
}

type createCommentRequest struct {
	Body string `json:"body" validate:"required,max=5000"`
}

func (req *createCommentRequest) normalize() { req.Body = strings.TrimSpace(req.Body) }

// ListComments handles GET /teams/{teamId}/tasks/{taskId}/comments.
func (h *commentsHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ids, err := uuidParams(r, "taskId")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	m := membershipFromContext(r.Context())
	comments, err := h.svc.List(r.Context(), m.TeamID, ids[0])
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if comments == nil {
		comments = []*comment.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// CreateComment handles POST /teams/{teamId}/tasks/{taskId}/comments.
func (h *commentsHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	ids, err := uuidParams(r, "taskId")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req createCommentRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	m := membershipFromContext(r.Context())
	c, err := h.svc.Create(r.Context(), auth.UserIDFromContext(r.Context()), m.TeamID, ids[0], req.Body)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "create", "comment", c.ID, "task_id", ids[0])
	writeJSON(w, http.StatusCreated, map[string]any{"comment": c})
}

// DeleteComment handles DELETE /teams/{teamId}/tasks/{taskId}/comments/{commentId}.
// Authors may delete their own comments; ADMIN and above may delete any.
func (h *commentsHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ids, err := uuidParams(r, "taskId", "commentId")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), membershipFromContext(r.Context()), ids[0], ids[1]); err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "delete", "comment", ids[1], "task_id", ids[0])
	w.WriteHeader(http.StatusNoContent)
}
