package task

import (
	"strings"
	"unicode/utf8"

	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/google/uuid"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
)

// Normalize trims the patch's text fields in place and checks every provided
// field. An empty patch is rejected.
func (p *Patch) Normalize() error {
	if p.Empty() {
		return apperr.InvalidBody(apperr.Issue{Path: "", Message: "At least one field must be provided"})
	}

	var issues []apperr.Issue
	if p.Title.Set {
		p.Title.Value = strings.TrimSpace(p.Title.Value)
		if p.Title.Null {
			issues = append(issues, apperr.Issue{Path: "title", Message: "title cannot be null"})
		} else if msg := checkLen(p.Title.Value, maxTitleLen); msg != "" {
			issues = append(issues, apperr.Issue{Path: "title", Message: msg})
		}
	}
	if p.Description.Set && !p.Description.Null {
		p.Description.Value = strings.TrimSpace(p.Description.Value)
		if msg := checkLen(p.Description.Value, maxDescriptionLen); msg != "" {
			issues = append(issues, apperr.Issue{Path: "description", Message: msg})
		}
	}
	if p.Status.Set && (p.Status.Null || !p.Status.Value.Valid()) {
		issues = append(issues, apperr.Issue{Path: "status", Message: "must be one of TODO, IN_PROGRESS, BLOCKED, DONE"})
	}
	if p.Priority.Set && (p.Priority.Null || !p.Priority.Value.Valid()) {
		issues = append(issues, apperr.Issue{Path: "priority", Message: "must be one of LOW, MEDIUM, HIGH, URGENT"})
	}
	if p.AssigneeUserID.Set && !p.AssigneeUserID.Null {
		if _, err := uuid.Parse(p.AssigneeUserID.Value); err != nil {
			issues = append(issues, apperr.Issue{Path: "assigneeUserId", Message: "must be a uuid"})
		}
	}
	if len(issues) > 0 {
		return apperr.InvalidBody(issues...)
	}
	return nil
}

func checkLen(s string, max int) string {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return "must not be empty"
	}
	if n > max {
		return "is too long"
	}
	return ""
}
