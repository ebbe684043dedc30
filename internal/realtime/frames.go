package realtime

import (
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/alecgard/taskforge/internal/activity"
)

// Inbound frame types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Outbound frame types.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeActivity     = "activity"
	TypeError        = "error"
)

// Error frame codes.
const (
	CodeBadJSON        = "BAD_JSON"
	CodeValidation     = "VALIDATION_ERROR"
	CodeUnknownMessage = "UNKNOWN_MESSAGE"
	CodeForbidden      = "FORBIDDEN"
	CodeInternal       = "INTERNAL_ERROR"
)

// Frame is an outbound message. Only the fields relevant to Type are set.
type Frame struct {
	Type     string             `json:"type"`
	TeamID   string             `json:"teamId,omitempty"`
	Code     string             `json:"code,omitempty"`
	Activity *activity.Activity `json:"activity,omitempty"`
}

func errorFrame(code string) Frame {
	return Frame{Type: TypeError, Code: code}
}

// inbound is a parsed client frame.
type inbound struct {
	typ    string
	teamID string
}

// parseInbound inspects a raw client frame. A non-empty code means the frame
// is rejected with that error code.
func parseInbound(raw []byte) (inbound, string) {
	if !gjson.ValidBytes(raw) {
		return inbound{}, CodeBadJSON
	}
	msg := gjson.ParseBytes(raw)
	if !msg.IsObject() {
		return inbound{}, CodeValidation
	}
	typ := msg.Get("type")
	if typ.Type != gjson.String {
		return inbound{}, CodeValidation
	}

	switch typ.Str {
	case TypeSubscribe, TypeUnsubscribe:
		teamID := msg.Get("teamId")
		if teamID.Type != gjson.String {
			return inbound{}, CodeValidation
		}
		id, err := uuid.Parse(teamID.Str)
		if err != nil {
			return inbound{}, CodeValidation
		}
		// Subscriptions are keyed by the canonical lower-case form that
		// activity carries.
		return inbound{typ: typ.Str, teamID: id.String()}, ""
	default:
		return inbound{typ: typ.Str}, CodeUnknownMessage
	}
}
