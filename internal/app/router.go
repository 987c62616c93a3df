package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storedash/storedash/internal/auth"
	"github.com/storedash/storedash/internal/catalog/categories"
	"github.com/storedash/storedash/internal/catalog/products"
	"github.com/storedash/storedash/internal/dashboard"
	"github.com/storedash/storedash/internal/observability"
	"github.com/storedash/storedash/internal/orders"
	"github.com/storedash/storedash/internal/rbac"
	"github.com/storedash/storedash/internal/revenue"
	"github.com/storedash/storedash/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Guard             rbac.Middleware
	AuthHandler       *auth.Handler
	ProductHandler    *products.Handler
	CategoryHandler   *categories.Handler
	OrderHandler      *orders.Handler
	RevenueHandler    *revenue.Handler
	DashboardHandler  *dashboard.Handler
	Metrics           *observability.Metrics
	DisableRequestLog bool
}

// NewRouter constructs the chi.Router with storedash defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:     params.Logger,
		Config:     params.Config,
		Metrics:    params.Metrics,
		Guard:      params.Guard,
		RequestLog: !params.DisableRequestLog,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	home := params.Guard.Gate.SectionPath(rbac.SectionDashboard)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, home, http.StatusSeeOther)
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountAPI)
		api.Group(func(g chi.Router) {
			g.Use(params.Guard.RequireSection(rbac.SectionProducts))
			g.Route("/products", params.ProductHandler.MountRoutes)
			g.Route("/categories", params.CategoryHandler.MountRoutes)
		})
		api.Group(func(g chi.Router) {
			g.Use(params.Guard.RequireSection(rbac.SectionOrders))
			g.Route("/orders", params.OrderHandler.MountRoutes)
		})
		api.Group(func(g chi.Router) {
			g.Use(params.Guard.RequireSection(rbac.SectionRevenue))
			g.Route("/revenue", params.RevenueHandler.MountRoutes)
		})
	})

	r.Route(params.Guard.Gate.Prefix(), func(admin chi.Router) {
		params.AuthHandler.MountPages(admin)
		params.DashboardHandler.MountRoutes(admin)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler marks embedded assets cacheable for one hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
