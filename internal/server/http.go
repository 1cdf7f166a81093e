package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/windfall/phonoecho/internal/config"
	httphandler "github.com/windfall/phonoecho/internal/handler/http"
	"github.com/windfall/phonoecho/internal/metrics"
	"github.com/windfall/phonoecho/internal/middleware"
	"github.com/windfall/phonoecho/internal/service"
)

// HTTPServer represents the HTTP server.
type HTTPServer struct {
	server *http.Server
	log    zerolog.Logger
}

// NewHTTPServer creates a new HTTP server. A nil metrics manager disables
// request metrics and the /metrics endpoint.
func NewHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	m *metrics.Manager,
	healthHandler *httphandler.HealthHandler,
	sessionHandler *httphandler.SessionHandler,
	lessonHandler *httphandler.LessonHandler,
	feedbackHandler *httphandler.FeedbackHandler,
	sessionService *service.SessionService,
	hub *WebSocketHub,
) *HTTPServer {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	if m != nil {
		r.Use(middleware.Metrics(m))
	}

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (public)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// Feedback stream; the token travels as a query parameter.
	r.With(middleware.Auth(sessionService)).Get("/ws/feedback", hub.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Compress(5))

		r.Post("/sessions", sessionHandler.Login)

		// Protected endpoints (require a session token)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionService))

			r.Delete("/sessions", sessionHandler.Logout)

			r.Get("/lessons", lessonHandler.List)
			r.Get("/lessons/{index}", lessonHandler.Open)
			r.Get("/lessons/{index}/video", lessonHandler.Video)
			r.Get("/lessons/{index}/history", lessonHandler.History)
			r.Post("/lessons/{index}/attempts", lessonHandler.SubmitAttempt)
			r.Post("/lessons/{index}/haptics", lessonHandler.StartHaptics)
			r.Delete("/lessons/{index}/haptics", lessonHandler.StopHaptics)

			r.Get("/attempts/{id}/artifacts", lessonHandler.Artifacts)

			r.Get("/feedback", feedbackHandler.Get)
		})
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddress(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &HTTPServer{
		server: server,
		log:    log,
	}
}

// Handler returns the router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
