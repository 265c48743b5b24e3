package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/optimapos/optimapos/internal/audit"
	"github.com/optimapos/optimapos/internal/auth"
	"github.com/optimapos/optimapos/internal/nomenclature/currencies"
	"github.com/optimapos/optimapos/internal/nomenclature/productclass"
	"github.com/optimapos/optimapos/internal/nomenclature/taxgroups"
	"github.com/optimapos/optimapos/internal/numbering"
	"github.com/optimapos/optimapos/internal/observability"
	"github.com/optimapos/optimapos/internal/purchases"
	"github.com/optimapos/optimapos/internal/rbac"
	"github.com/optimapos/optimapos/internal/workflow"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthService *auth.Service

	AuthHandler         *auth.Handler
	RBACHandler         *rbac.Handler
	CurrenciesHandler   *currencies.Handler
	TaxGroupsHandler    *taxgroups.Handler
	ProductClassHandler *productclass.Handler
	NumberingHandler    *numbering.Handler
	WorkflowHandler     *workflow.Handler
	PurchasesHandler    *purchases.Handler
	AuditHandler        *audit.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi router with the full API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountPublicRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(params.AuthService.Middleware)
				params.AuthHandler.MountRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthService.Middleware)

			r.Route("/rbac", params.RBACHandler.MountRoutes)
			r.Route("/currencies", params.CurrenciesHandler.MountRoutes)
			r.Route("/tax-groups", params.TaxGroupsHandler.MountRoutes)
			r.Route("/product-classifications", params.ProductClassHandler.MountRoutes)
			r.Route("/numbering", params.NumberingHandler.MountRoutes)
			r.Route("/workflow", params.WorkflowHandler.MountRoutes)
			r.Route("/purchases", params.PurchasesHandler.MountRoutes)
			r.Route("/audit", params.AuditHandler.MountRoutes)
		})
	})

	return r
}
