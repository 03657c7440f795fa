package routes

import (
	"net/http"

	"github.com/dukerupert/vies/internal/handler"
	"github.com/dukerupert/vies/internal/handler/api"
	"github.com/dukerupert/vies/internal/router"
)

// RegisterAPIRoutes registers the VAT lookup API.
// These routes do not require authentication.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	r.Get("/api/vat/{country}/{number}", deps.VATHandler.Check, deps.VATMiddleware...)
}

// RegisterOpsRoutes registers health, metrics and the JSON not-found
// fallback.
func RegisterOpsRoutes(r *router.Router, deps OpsDeps) {
	r.Get("/health", api.Health)
	if deps.MetricsHandler != nil {
		r.Handle(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.NotFound(handler.NotFoundResponse)
}
