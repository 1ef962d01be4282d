package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/fxledger/internal/adapter/http/handler"
	"github.com/iho/fxledger/internal/adapter/http/middleware"
	"github.com/iho/fxledger/internal/domain"
	"github.com/iho/fxledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	OrderHandler      *handler.OrderHandler
	DocumentHandler   *handler.DocumentHandler
	AdjustmentHandler *handler.AdjustmentHandler
	BalanceHandler    *handler.BalanceHandler
	LedgerHandler     *handler.LedgerHandler
	HealthHandler     *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	Logger           zerolog.Logger
	// MetricsHandler serves /metrics; promhttp.Handler() when nil.
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	r.Use(middleware.Metrics)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.IdempotencyKeyHeader, handler.PerformedByHeader},
			ExposedHeaders: []string{middleware.IdempotencyReplayHeader},
			MaxAge:         300,
		}))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}

		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL)
			r.Use(idempotencyMiddleware.Wrap)
		}

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", cfg.OrderHandler.Create)
			r.Post("/{id}/process", cfg.OrderHandler.Process)
			r.Delete("/{id}", cfg.OrderHandler.Delete)
		})

		// Accounting documents
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Create)
			r.Post("/{id}/process", cfg.DocumentHandler.Process)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Post("/adjustments", cfg.AdjustmentHandler.Create)

		// Balances and history
		r.Get("/balances", cfg.BalanceHandler.List)
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/customer/{customerID}/{currency}/balance", cfg.BalanceHandler.Balance(domain.AccountKindCustomer))
			r.Get("/customer/{customerID}/{currency}/history", cfg.BalanceHandler.History(domain.AccountKindCustomer))
			r.Get("/pool/{currency}/balance", cfg.BalanceHandler.Balance(domain.AccountKindPool))
			r.Get("/pool/{currency}/history", cfg.BalanceHandler.History(domain.AccountKindPool))
			r.Get("/bank/{bankAccountID}/balance", cfg.BalanceHandler.Balance(domain.AccountKindBank))
			r.Get("/bank/{bankAccountID}/history", cfg.BalanceHandler.History(domain.AccountKindBank))
		})

		// Ledger maintenance
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/consistency", cfg.LedgerHandler.CheckConsistency)
			r.Post("/repair", cfg.LedgerHandler.Repair)
			r.Post("/rebuild", cfg.LedgerHandler.Rebuild)
		})
	})

	return r
}
