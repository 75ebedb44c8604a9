// Package httpapi provides the HTTP server and routing that exposes a
// single AppState's status, manual-trade, log, and universe-transition
// surface to operator tooling and the live UI.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/coordinator"
)

// Config holds server configuration.
type Config struct {
	Log            zerolog.Logger
	AppState       *coordinator.AppState
	Port           int
	DevMode        bool
	AllowedOrigins []string
	APIToken       string // empty disables bearer-token auth entirely
}

// Server is the HTTP front door onto one AppState. It never holds a
// Coordinator reference directly: every request resolves the currently
// active generation through AppState, since a destructive universe
// transition can swap it out between requests.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	appState *coordinator.AppState
	apiToken string
	hub      *wsHub
}

// New creates a new HTTP server wired to cfg.AppState.
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "httpapi").Logger(),
		appState: cfg.AppState,
		apiToken: cfg.APIToken,
		hub:      newWSHub(cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode, cfg.AllowedOrigins)
	s.setupRoutes()

	s.appState.SetBroadcaster(s.hub.broadcast)

	port := cfg.Port
	if port <= 0 {
		port = 8001
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupMiddleware configures the chi middleware stack.
func (s *Server) setupMiddleware(devMode bool, allowedOrigins []string) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Post("/trade", s.handleManualTrade)
		r.Post("/risk/reset", s.handleResetCircuitBreaker)
		r.Post("/universe/transition", s.handleUniverseTransition)
		r.Get("/ws", s.handleWebSocket)
	})
}

// loggingMiddleware logs HTTP requests in the teacher's structured style.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// authMiddleware rejects requests missing a matching bearer token when one
// is configured. An empty APIToken disables the check entirely, which is
// the expected shape for a local SIMULATION instance with no exposed port.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		if got != "Bearer "+s.apiToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and its websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	s.hub.closeAll()
	return s.server.Shutdown(ctx)
}
