package task

import (
	"encoding/json"
	"testing"

	"github.com/alecgard/taskforge/internal/apperr"
)

func TestPatchDistinguishesNullFromAbsent(t *testing.T) {
	var p Patch
	if err := json.Unmarshal([]byte(`{"description":null,"status":"DONE"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if p.Title.Set {
		t.Error("absent title must not be set")
	}
	if !p.Description.Set || !p.Description.Null {
		t.Errorf("description should be explicit null, got %+v", p.Description)
	}
	if p.Description.Ptr() != nil {
		t.Error("null description should clear the column")
	}
	if !p.Status.Set || p.Status.Null || p.Status.Value != StatusDone {
		t.Errorf("unexpected status field %+v", p.Status)
	}

	fields := p.Fields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 provided fields, got %v", fields)
	}
	if v, ok := fields["description"]; !ok || v != nil {
		t.Errorf("expected description: nil in fields, got %v", fields)
	}
}

func TestPatchNormalize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"empty patch", `{}`, true},
		{"title only", `{"title":"  Ship it  "}`, false},
		{"null title", `{"title":null}`, true},
		{"blank title", `{"title":"   "}`, true},
		{"null status", `{"status":null}`, true},
		{"unknown status", `{"status":"done"}`, true},
		{"null priority", `{"priority":null}`, true},
		{"valid priority", `{"priority":"URGENT"}`, false},
		{"clear description", `{"description":null}`, false},
		{"blank description", `{"description":""}`, true},
		{"clear assignee", `{"assigneeUserId":null}`, false},
		{"malformed assignee", `{"assigneeUserId":"bob"}`, true},
		{"clear due date", `{"dueAt":null}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Patch
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			err := p.Normalize()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperr.IsCode(err, apperr.CodeValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestPatchNormalizeTrimsTitle(t *testing.T) {
	p := Patch{Title: Some("  Ship it  ")}
	if err := p.Normalize(); err != nil {
		t.Fatal(err)
	}
	if p.Title.Value != "Ship it" {
		t.Errorf("expected trimmed title, got %q", p.Title.Value)
	}
}
