package api

import (
	"net/http"
	"strconv"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/apperr"
)

// activityHandler serves a team's activity log.
type activityHandler struct {
	lister ActivityLister
}

func newActivityHandler(lister ActivityLister) *activityHandler {
	return &activityHandler{lister: lister}
}

// ListActivity handles GET /teams/{teamId}/activity?cursor=&limit=.
func (h *activityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := activity.ListParams{Cursor: q.Get("cursor")}

	var issues []apperr.Issue
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			issues = append(issues, apperr.Issue{Path: "limit", Message: "must be a positive integer"})
		}
		params.Limit = n
	}
	if params.Cursor != "" {
		if _, _, err := activity.DecodeCursor(params.Cursor); err != nil {
			issues = append(issues, apperr.Issue{Path: "cursor", Message: "is not a valid cursor"})
		}
	}
	if len(issues) > 0 {
		writeAppError(w, r, apperr.InvalidQuery(issues...))
		return
	}

	m := membershipFromContext(r.Context())
	rows, next, err := h.lister.ListByTeam(r.Context(), m.TeamID, params)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if rows == nil {
		rows = []*activity.Activity{}
	}

	resp := map[string]any{"activity": rows}
	if next != "" {
		resp["nextCursor"] = next
	}
	writeJSON(w, http.StatusOK, resp)
}
