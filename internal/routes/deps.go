package routes

import (
	"net/http"

	"github.com/dukerupert/vies/internal/handler/api"
	"github.com/dukerupert/vies/internal/router"
)

// APIDeps contains dependencies for API routes
type APIDeps struct {
	VATHandler *api.VATHandler

	// VATMiddleware wraps only the lookup route (rate limit, timeout).
	VATMiddleware []router.Middleware
}

// OpsDeps contains dependencies for operational routes
type OpsDeps struct {
	// MetricsHandler serves Prometheus metrics. Nil disables /metrics.
	MetricsHandler http.Handler
}
