package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nerrad567/p1-videostream/internal/site"
)

// sitePath is where the browser front end lives.
const sitePath = "/site/app.html"

// buildRouter creates the HTTP router with all routes and middleware.
// ctx bounds background goroutines started by middleware.
func (s *Server) buildRouter(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.security.RateLimit.Enabled {
		r.Use(s.rateLimitMiddleware(ctx))
	}
	r.Use(middleware.GetHead)

	// Anything unrouted, including a known path with the wrong method, is a bare 404.
	notFound := func(w http.ResponseWriter, _ *http.Request) { writeBare(w, http.StatusNotFound) }
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	// Frame endpoints check the API key themselves and answer errors without a body.
	r.Post("/v1/p1", s.handleFrame)
	r.Get("/v1/p1/mjpeg", s.handleMJPEG)

	r.Group(func(r chi.Router) {
		r.Use(s.apiKeyMiddleware)
		r.Get("/v1/events", s.handleEvents)
		r.Get("/v1/sessions", s.handleSessions)
	})

	r.Handle("/site/*", http.StripPrefix("/site", site.Handler(s.siteDir)))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, sitePath, http.StatusTemporaryRedirect)
	})

	// Operational endpoints (no auth required)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}
