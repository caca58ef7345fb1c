/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Request counts and latency by route (when configured)
  5. CORS:       Cross-origin requests from the representatives' frontend

ROUTE GROUPS:
  /api/analyze          Reconciled view
  /api/products/*       Catalog products and added products
  /api/categories       Catalog categories
  /api/orders           Order snapshots
  /api/export           Report download
  /api/health           Liveness and period readiness
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. The service is meant to run behind the
  company's reverse proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. An empty
// origins list allows any origin.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
		}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if h.Metrics != nil {
		r.Use(h.Metrics.Instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Archive-URL"},
		AllowCredentials: allowCredentials,
	}))

	r.NotFound(routeNotFound)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.AddProduct)
			r.Get("/added", h.ListAddedProducts)
		})
		r.Get("/categories", h.ListCategories)

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/", h.SaveOrder)
		})

		r.Post("/export", h.Export)
		r.Get("/health", h.Health)
	})

	if h.Metrics != nil {
		r.Method("GET", "/metrics", h.Metrics.Handler())
	}

	return r
}
