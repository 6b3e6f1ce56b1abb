// Package api serves the pricing engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/comp-pricer/internal/model"
	"github.com/sells-group/comp-pricer/internal/pricing"
)

// PricingService is the part of pricing.Service the API needs.
type PricingService interface {
	Price(ctx context.Context, req pricing.PriceRequest) (*pricing.PricingResponse, error)
	GetHistory(ctx context.Context, limit, offset int) ([]model.PricingResultSummary, error)
	GetByID(ctx context.Context, resultID string) (*pricing.PricingResultDetail, error)
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// RequestTimeout bounds each request. Zero means 60s.
	RequestTimeout time.Duration
}

// Handler holds the API dependencies.
type Handler struct {
	svc   PricingService
	store Pinger
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(svc PricingService, store Pinger, opts Options) http.Handler {
	h := &Handler{svc: svc, store: store}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/price", h.price)
		r.Get("/results", h.listResults)
		r.Get("/results/{id}", h.getResult)
	})
	return r
}
