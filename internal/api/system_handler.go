package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/taskforge/internal/database"
)

const (
	rootBody = "Welcome to TaskForge!"
	rootETag = `W/"15-E9IrSfED/8Fp4SZP9LZB6ui+Ndg"`
)

// systemHandler serves the unauthenticated service endpoints.
type systemHandler struct {
	db Pinger
}

// Root handles GET /.
func (h *systemHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", rootETag)
	if r.Header.Get("If-None-Match") == rootETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(rootBody)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rootBody))
}

// Health handles GET /health. The service itself is always "ok"; database
// reports whether the pool answers a ping.
func (h *systemHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "not_configured"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		switch err := h.db.Ping(ctx); {
		case err == nil:
			status = "connected"
		case errors.Is(err, database.ErrNotConfigured):
		default:
			status = "unavailable"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": status,
	})
}

// OpenAPI handles GET /openapi.json.
func (h *systemHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, openAPIDocument(scheme+"://"+r.Host))
}
