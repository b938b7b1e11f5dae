package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accessgate/accessgate/internal/auth"
	"github.com/accessgate/accessgate/internal/observability"
	"github.com/accessgate/accessgate/internal/rbac"
	"github.com/accessgate/accessgate/internal/shared"
	"github.com/accessgate/accessgate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	AuthHandler    *auth.Handler
	RBACHandler    *rbac.Handler
	Gate           rbac.Gate
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter assembles the chi router with the middleware stack and all
// mounted modules.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         p.Logger,
		Config:         p.Config,
		SessionManager: p.SessionManager,
		Metrics:        p.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		p.AuthHandler.MountRoutes(r)
	})

	p.RBACHandler.MountRoutes(r)

	if p.JobsHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(p.Gate.RequirePermission(shared.PermJobsRun))
			p.JobsHandler.MountRoutes(r)
		})
	}

	return r
}
