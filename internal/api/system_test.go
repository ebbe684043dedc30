package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/comment"
	"github.com/alecgard/taskforge/internal/database"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
	"github.com/alecgard/taskforge/internal/user"
)

// fakePinger implements Pinger for the health handler.
type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestRoot(t *testing.T) {
	handler := NewRouter(RouterDeps{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "Welcome to TaskForge!" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("ETag"); got != `W/"15-E9IrSfED/8Fp4SZP9LZB6ui+Ndg"` {
		t.Errorf("unexpected ETag %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("unexpected Content-Type %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", `W/"15-E9IrSfED/8Fp4SZP9LZB6ui+Ndg"`)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected status 304, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body on 304, got %q", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		db           Pinger
		wantDatabase string
	}{
		{"no database", nil, "not_configured"},
		{"unconfigured pool", fakePinger{err: database.ErrNotConfigured}, "not_configured"},
		{"connected", fakePinger{}, "connected"},
		{"unreachable", fakePinger{err: errors.New("dial tcp: connection refused")}, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRouter(RouterDeps{DB: tt.db})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["status"] != "ok" {
				t.Errorf("expected status=ok, got %q", body["status"])
			}
			if body["database"] != tt.wantDatabase {
				t.Errorf("expected database=%s, got %q", tt.wantDatabase, body["database"])
			}
		})
	}
}

func TestOpenAPI(t *testing.T) {
	handler := NewRouter(RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	req.Host = "tasks.example.com"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var doc map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("failed to decode document: %v", err)
	}
	if doc["openapi"] != "3.0.3" {
		t.Errorf("expected openapi 3.0.3, got %v", doc["openapi"])
	}
	servers, _ := doc["servers"].([]any)
	if len(servers) != 1 || servers[0].(map[string]any)["url"] != "http://tasks.example.com" {
		t.Errorf("unexpected servers %v", servers)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/auth/register", "/teams/{teamId}/tasks/{taskId}", "/teams/{teamId}/activity"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("paths missing %q", p)
		}
	}
}

func TestRouter_NotFound(t *testing.T) {
	handler := NewRouter(RouterDeps{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/nope"},
		{http.MethodDelete, "/health"},
	} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, rec.Code)
		}
		var envelope errorEnvelope
		if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if envelope.Error.Code != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND, got %q", envelope.Error.Code)
		}
		if envelope.Error.RequestID == "" {
			t.Error("expected requestId in error body")
		}
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"https://myapp.com"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://myapp.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options: nosniff on router responses")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID to be set on router responses")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://myapp.com" {
		t.Errorf("expected Access-Control-Allow-Origin=https://myapp.com, got %q", got)
	}
}

func TestRouter_PreflightAtAnyPath(t *testing.T) {
	handler := NewRouter(RouterDeps{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodOptions, "/teams/abc/tasks", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS preflight, got %d", rec.Code)
	}
}

// TestDatabaseNotConfigured wires the real PostgreSQL stores to a DB with no
// pool, the way serve runs without a database URL.
func TestDatabaseNotConfigured(t *testing.T) {
	db := database.New(nil)
	users := user.NewStore(db)
	teams := team.NewStore(db)
	tasks := task.NewStore(db)
	rec := activity.NewRecorder(activity.NewStore(db), activity.NewLocalBus())
	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	authSvc := auth.NewService(users, db, tokens, 4)
	teamSvc := team.NewService(teams, users, db, rec)

	handler := NewRouter(RouterDeps{
		Auth:     authSvc,
		Teams:    teamSvc,
		Tasks:    task.NewService(tasks, teams, db, rec),
		Comments: comment.NewService(comment.NewStore(db), tasks, db, rec),
		Activity: activity.NewStore(db),
		DB:       db,
	})

	access, err := tokens.IssueAccess("3f0e6e0e-8a44-4b8e-9a8c-6f1f2b8d6a01")
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
	}{
		{"register", http.MethodPost, "/auth/register", "", `{"email":"a@example.com","name":"A","password":"password1"}`},
		{"login", http.MethodPost, "/auth/login", "", `{"email":"a@example.com","password":"password1"}`},
		{"list teams", http.MethodGet, "/teams", access, ""},
		{"team route", http.MethodGet, "/teams/3f0e6e0e-8a44-4b8e-9a8c-6f1f2b8d6a02/tasks", access, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
			}
			var envelope errorEnvelope
			if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if envelope.Error.Code != "DB_NOT_CONFIGURED" {
				t.Errorf("expected DB_NOT_CONFIGURED, got %q", envelope.Error.Code)
			}
		})
	}
}

// TestLogoutWithoutDatabase checks that an unverifiable token still gets 204
// while a real revocation the store cannot perform is reported.
func TestLogoutWithoutDatabase(t *testing.T) {
	db := database.New(nil)
	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	handler := NewRouter(RouterDeps{
		Auth: auth.NewService(user.NewStore(db), db, tokens, 4),
		DB:   db,
	})

	refresh, err := tokens.IssueRefresh("3f0e6e0e-8a44-4b8e-9a8c-6f1f2b8d6a01")
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"unverifiable token", "garbage", http.StatusNoContent},
		{"valid token", refresh.Token, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"refreshToken":"` + tt.token + `"}`
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(body)))
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}
