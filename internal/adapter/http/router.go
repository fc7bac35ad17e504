package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/creditledger/internal/adapter/http/handler"
	"github.com/iho/creditledger/internal/adapter/http/middleware"
	"github.com/iho/creditledger/internal/infrastructure/metrics"
	"github.com/iho/creditledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	FacilityHandler  *handler.FacilityHandler
	HealthHandler    *handler.HealthHandler
	IdempotencyStore usecase.IdempotencyStore
	Metrics          *metrics.Metrics
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.NewRecoveryMiddleware(cfg.Logger).Wrap)
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}

	// Health and observability endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore)
			r.Use(idempotencyMiddleware.Wrap)
		}

		r.Route("/facilities", func(r chi.Router) {
			r.Post("/", cfg.FacilityHandler.Create)
			r.Get("/", cfg.FacilityHandler.List)
			r.Get("/{id}", cfg.FacilityHandler.Get)
			r.Get("/{id}/balance", cfg.FacilityHandler.GetBalance)
			r.Post("/{id}/approval", cfg.FacilityHandler.ConcludeApproval)
			r.Post("/{id}/activate", cfg.FacilityHandler.Activate)
			r.Post("/{id}/collateral", cfg.FacilityHandler.UpdateCollateral)
			r.Post("/{id}/disbursals", cfg.FacilityHandler.InitiateDisbursal)
			r.Post("/{id}/disbursals/{idx}/conclude", cfg.FacilityHandler.ConcludeDisbursal)
			r.Post("/{id}/accruals/record", cfg.FacilityHandler.RecordAccrual)
			r.Post("/{id}/repayments", cfg.FacilityHandler.RecordRepayment)
			r.Post("/{id}/complete", cfg.FacilityHandler.Complete)
		})
	})

	return r
}
