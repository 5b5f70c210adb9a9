// Package api wires the refresher HTTP routes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/api/handlers"
	"github.com/pysugar/codex-status-fleet/internal/api/middleware"
	"github.com/pysugar/codex-status-fleet/internal/refresh"
)

// Deps are the collaborators the routes need. States and Gatherer may be nil.
type Deps struct {
	Registry      *accounts.Registry
	Coordinator   *refresh.Coordinator
	States        handlers.StateSource
	Gatherer      prometheus.Gatherer
	AdminPassword string
}

// NewRouter builds the refresher router. Everything except /healthz and
// /metrics sits behind the optional admin password.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", handlers.HealthHandler())
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(d.AdminPassword))

		r.Post("/refresh", handlers.RefreshHandler(d.Coordinator))
		r.Get("/refresh/last", handlers.LastRefreshHandler(d.Coordinator))
		r.Get("/accounts", handlers.AccountsHandler(d.Registry, d.Coordinator.Guard(), d.States))

		r.Route("/config", func(r chi.Router) {
			r.Post("/push_registry", handlers.PushRegistryHandler(d.Coordinator))
			r.Post("/add_accounts", handlers.AddAccountsHandler(d.Registry, d.Coordinator))
			r.Post("/add_anthropic_keys", handlers.AddAnthropicKeysHandler(d.Registry, d.Coordinator))
			r.Post("/add_fireworks_keys", handlers.AddFireworksKeysHandler(d.Registry, d.Coordinator))
			r.Post("/note_set", handlers.SetNoteHandler(d.Registry, d.Coordinator))
			r.Post("/note_append", handlers.AppendNoteHandler(d.Registry, d.Coordinator))
			r.Post("/account_patch", handlers.PatchAccountHandler(d.Registry, d.Coordinator))
			r.Post("/remove_accounts", handlers.RemoveAccountsHandler(d.Registry, d.Coordinator))
		})
	})
	return r
}
