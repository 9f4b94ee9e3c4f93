package shop

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"FoodCart/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// CheckoutLimitPerMin caps order submissions per client IP; 0 disables.
	CheckoutLimitPerMin int
}

const limitWindow = 60 * time.Second

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if s.Log == nil {
		s.Log = deps.Log
	}

	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)
	setupRoutes(r, s, deps)

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		if deps.MetricsEnabled {
			deps.Log.Warn("metrics enabled but Registry is nil")
		}
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupRoutes(r *chi.Mux, s *Server, deps HTTPDeps) {
	checkoutLimiter := kit.NewIPRateLimiter(deps.CheckoutLimitPerMin, limitWindow)

	r.Get("/healthz", healthz)
	r.Get("/readyz", s.handleReady)

	r.Route("/cart", func(cr chi.Router) {
		cr.Get("/", s.handleGetCart)
		cr.Delete("/", s.handleClearCart)
		cr.Post("/items", s.handleAddItem)
		cr.Patch("/items/{id}", s.handleUpdateItem)
		cr.Delete("/items/{id}", s.handleRemoveItem)
	})

	r.With(checkoutLimiter.Middleware).Post("/checkout", s.handleCheckout)

	r.Get("/foods", s.handleListFoods)
	r.Get("/foods/{id}", s.handleGetFood)

	r.Route("/session", func(sr chi.Router) {
		sr.Get("/", s.handleGetSession)
		sr.Put("/", s.handlePutSession)
		sr.Delete("/", s.handleLogout)
	})

	r.Get("/preferences", s.handleGetPreferences)
	r.Put("/preferences", s.handlePutPreferences)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
