package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/task"
)

// tasksHandler groups task HTTP handlers.
type tasksHandler struct {
	svc *task.Service
}

func newTasksHandler(svc *task.Service) *tasksHandler {
	return &tasksHandler{svc: svc}
}

type createTaskRequest struct {
	Title          string        `json:"title" validate:"required,max=200"`
	Description    *string       `json:"description" validate:"omitnil,min=1,max=5000"`
	Status         task.Status   `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS BLOCKED DONE"`
	Priority       task.Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	DueAt          *time.Time    `json:"dueAt"`
	AssigneeUserID *string       `json:"assigneeUserId" validate:"omitnil,uuid"`
}

func (req *createTaskRequest) normalize() {
	req.Title = strings.TrimSpace(req.Title)
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		req.Description = &d
	}
}

// ListTasks handles GET /teams/{teamId}/tasks.
func (h *tasksHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	m := membershipFromContext(r.Context())
	tasks, err := h.svc.List(r.Context(), m.TeamID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// CreateTask handles POST /teams/{teamId}/tasks.
func (h *tasksHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeBody(r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	m := membershipFromContext(r.Context())
	t, err := h.svc.Create(r.Context(), auth.UserIDFromContext(r.Context()), m.TeamID, task.CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		Priority:       req.Priority,
		DueAt:          req.DueAt,
		AssigneeUserID: req.AssigneeUserID,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "create", "task", t.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"task": t})
}

// UpdateTask handles PATCH /teams/{teamId}/tasks/{taskId}. The body is a
// partial update: absent fields are left alone and null clears a nullable
// field.
func (h *tasksHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ids, err := uuidParams(r, "taskId")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var patch task.Patch
	if err := readJSON(r, &patch); err != nil {
		writeAppError(w, r, err)
		return
	}

	m := membershipFromContext(r.Context())
	t, err := h.svc.Update(r.Context(), auth.UserIDFromContext(r.Context()), m.TeamID, ids[0], patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	auditLog(r, "update", "task", t.ID)
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}
