package api

import (
	"log/slog"
	"net/http"

	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/ratelimit"
)

// auditLog emits a structured audit log entry for a mutation.
func auditLog(r *http.Request, action string, resourceType string, resourceID string, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", ratelimit.ClientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if id := auth.UserIDFromContext(r.Context()); id != "" {
		attrs = append(attrs, "user_id", id)
	}
	if m := membershipFromContext(r.Context()); m != nil {
		attrs = append(attrs, "team_id", m.TeamID, "team_role", m.Role)
	}

	attrs = append(attrs, detail...)
	slog.Info("audit", attrs...)
}
