package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/common"
	"github.com/noah-isme/bizledger/internal/health"
	"github.com/noah-isme/bizledger/internal/obs"
	"github.com/noah-isme/bizledger/internal/ratelimit"
	"github.com/noah-isme/bizledger/internal/sale"
	"github.com/noah-isme/bizledger/internal/security"
	"github.com/noah-isme/bizledger/internal/tenant"
)

// Router builds the HTTP surface. Writes are rate limited per business and
// client, and replay-protected by Idempotency-Key when Redis is available.
func (d *Dependencies) Router() http.Handler {
	cfg := d.Config
	resolver := tenant.NewResolver(cfg.TenantHeader, cfg.DefaultBusinessID)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(resolver.Middleware)
	r.Use(obs.RequestMetaMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.MetricsEnabled {
		metrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, nil)
		r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", cfg.TenantHeader, common.IdempotencyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{Probes: d.Probes(), Timeout: cfg.ReadyProbeTimeout}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	sales := &sale.Handler{Svc: d.Sales}
	commissions := &commission.Handler{Svc: d.Commissions, DefaultPerPage: cfg.DefaultPerPage}

	writes := []func(http.Handler) http.Handler{
		ratelimit.Handler{
			Limiter: d.Limiter,
			OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
		}.Middleware,
	}
	if d.Redis != nil {
		idem := common.Idem{
			R:   d.Redis,
			TTL: cfg.IdempotencyTTL,
			Scope: func(req *http.Request) string {
				business, _ := tenant.FromContext(req.Context())
				return business
			},
		}
		writes = append(writes, idem.Middleware)
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(tenant.Require)
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

		v.Post("/sales/quote", sales.Quote)
		v.Get("/sales/{saleID}", sales.Get)
		v.Get("/sales/{saleID}/payments", sales.ListPayments)
		v.Get("/commissions", commissions.List)
		v.Get("/employees/{employeeID}/commissions/summary", commissions.Summary)

		v.Group(func(w chi.Router) {
			w.Use(writes...)
			w.Post("/sales", sales.Checkout)
			w.Post("/sales/{saleID}/payments", sales.RecordPayment)
			w.Post("/commissions", commissions.Record)
			w.Post("/commissions/mark-paid", commissions.MarkPaid)
		})
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
