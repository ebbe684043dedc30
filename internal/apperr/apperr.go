// Package apperr defines the typed errors that cross the service boundary and
// are rendered into the public error envelope by the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes exposed to clients.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeTaskNotFound       = "TASK_NOT_FOUND"
	CodeCommentNotFound    = "COMMENT_NOT_FOUND"
	CodeMembershipNotFound = "MEMBERSHIP_NOT_FOUND"
	CodeEmailInUse         = "EMAIL_IN_USE"
	CodeAlreadyAMember     = "ALREADY_A_MEMBER"
	CodeLastOwner          = "LAST_OWNER"
	CodeAssigneeNotInTeam  = "ASSIGNEE_NOT_IN_TEAM"
	CodeRateLimited        = "RATE_LIMITED"
	CodeDBNotConfigured    = "DB_NOT_CONFIGURED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is an application error with an HTTP status and a stable code.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given status, code and message.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Validation returns a 400 VALIDATION_ERROR carrying optional details.
func Validation(message string, details any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, Details: details}
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden() *Error {
	return New(http.StatusForbidden, CodeForbidden, "Forbidden")
}

func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

// Internal wraps an unexpected error. The cause is logged, never rendered.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error", Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsCode reports whether err carries the given application code.
func IsCode(err error, code string) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}

// Issue is one failed validation rule.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationDetails says which part of the request failed validation.
type ValidationDetails struct {
	Location string  `json:"location"`
	Issues   []Issue `json:"issues"`
}

// InvalidBody is a VALIDATION_ERROR for the request body.
func InvalidBody(issues ...Issue) *Error {
	return Validation("Invalid request body", ValidationDetails{Location: "body", Issues: issues})
}

// InvalidParams is a VALIDATION_ERROR for path parameters.
func InvalidParams(issues ...Issue) *Error {
	return Validation("Invalid path parameters", ValidationDetails{Location: "params", Issues: issues})
}

// InvalidQuery is a VALIDATION_ERROR for the query string.
func InvalidQuery(issues ...Issue) *Error {
	return Validation("Invalid query parameters", ValidationDetails{Location: "query", Issues: issues})
}
