package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/taskforge/internal/activity"
	"github.com/alecgard/taskforge/internal/apperr"
	"github.com/alecgard/taskforge/internal/auth"
	"github.com/alecgard/taskforge/internal/comment"
	"github.com/alecgard/taskforge/internal/metrics"
	"github.com/alecgard/taskforge/internal/ratelimit"
	"github.com/alecgard/taskforge/internal/task"
	"github.com/alecgard/taskforge/internal/team"
)

// ActivityLister pages through a team's activity log.
type ActivityLister interface {
	ListByTeam(ctx context.Context, teamID string, params activity.ListParams) ([]*activity.Activity, string, error)
}

// Pinger reports database reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Auth     *auth.Service
	Teams    *team.Service
	Tasks    *task.Service
	Comments *comment.Service
	Activity ActivityLister
	Realtime http.Handler
	Metrics  *metrics.Metrics
	DB       Pinger

	// Limiter is applied to every route when RateLimitEnabled is set.
	Limiter          *ratelimit.Limiter
	RateLimitEnabled bool
	AllowedOrigins   []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestIDMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.RateLimitEnabled && deps.Limiter != nil {
		r.Use(ratelimit.Middleware(deps.Limiter, ratelimit.ClientIP, rateLimitRejector(deps.Metrics)))
	}

	notFound := func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, apperr.CodeNotFound, "Not Found", nil)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	sys := &systemHandler{db: deps.DB}
	r.Get("/", sys.Root)
	r.Get("/health", sys.Health)
	r.Get("/openapi.json", sys.OpenAPI)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.PrometheusHandler())
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}
	if deps.Realtime != nil {
		r.Handle("/realtime", deps.Realtime)
	}

	// Without an auth service there is nothing else to serve; tests build
	// routers like this to exercise the middleware alone.
	if deps.Auth == nil {
		return r
	}

	authed := requireAuth(deps.Auth)
	ah := newAuthHandler(deps.Auth)

	r.Route("/auth", func(ar chi.Router) {
		ar.Post("/register", ah.Register)
		ar.Post("/login", ah.Login)
		ar.Post("/refresh", ah.Refresh)
		ar.Post("/logout", ah.Logout)
	})
	r.With(authed).Get("/me", ah.Me)

	th := newTeamsHandler(deps.Teams)
	tk := newTasksHandler(deps.Tasks)
	ch := newCommentsHandler(deps.Comments)
	acth := newActivityHandler(deps.Activity)

	member := requireTeamRole(deps.Teams, team.RoleMember)
	admin := requireTeamRole(deps.Teams, team.RoleAdmin)

	r.Route("/teams", func(tr chi.Router) {
		tr.Use(authed)

		tr.Post("/", th.CreateTeam)
		tr.Get("/", th.ListTeams)

		tr.Route("/{teamId}", func(tm chi.Router) {
			tm.With(member).Get("/members", th.ListMembers)
			tm.With(admin).Post("/members", th.AddMember)
			tm.With(admin).Patch("/members/{userId}", th.UpdateMember)
			tm.With(admin).Delete("/members/{userId}", th.RemoveMember)

			tm.With(member).Get("/tasks", tk.ListTasks)
			tm.With(member).Post("/tasks", tk.CreateTask)
			tm.With(member).Patch("/tasks/{taskId}", tk.UpdateTask)

			tm.With(member).Get("/tasks/{taskId}/comments", ch.ListComments)
			tm.With(member).Post("/tasks/{taskId}/comments", ch.CreateComment)
			tm.With(member).Delete("/tasks/{taskId}/comments/{commentId}", ch.DeleteComment)

			if deps.Activity != nil {
				tm.With(member).Get("/activity", acth.ListActivity)
			}
		})
	})

	return r
}
