// Package api provides the HTTP surface: the live MJPEG feed, the
// detection event store, upload gate status and the WebSocket feed.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sentrylabs/facewatch/internal/config"
	"github.com/sentrylabs/facewatch/internal/motion"
	"github.com/sentrylabs/facewatch/internal/store"
	"github.com/sentrylabs/facewatch/internal/stream"
	"github.com/sentrylabs/facewatch/internal/upload"
	"github.com/sentrylabs/facewatch/internal/ws"
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger
}

// Deps carries the collaborators the handlers serve from. Events may
// be nil when the database is unavailable; the affected routes are
// simply not registered and health reports the store as down.
type Deps struct {
	Frames    *stream.Buffer
	Scheduler *upload.Scheduler
	Detector  *motion.Detector
	Hub       *ws.Hub
	Events    store.EventStore
}

// NewServer wires all routes and middleware.
func NewServer(cfg *config.Config, deps Deps) *Server {
	mux := http.NewServeMux()

	// Streaming routes hold one long-lived connection per client and
	// stay outside the rate limiter.
	mux.Handle("/video_feed", stream.NewHandler(deps.Frames, cfg.Video.FrameRate))
	mux.Handle("/snapshot", stream.NewSnapshot(deps.Frames))

	if deps.Hub != nil {
		mux.Handle("/ws", ws.NewHandler(deps.Hub, cfg.API.AllowedOrigins))
	}

	limiter := NewRateLimiter(cfg.API.RateLimitPerMin, time.Minute)

	statusHandler := NewStatusHandler(cfg, deps)
	statusHandler.RegisterRoutes(mux, limiter)

	if deps.Events != nil {
		eventsHandler := NewEventsHandler(deps.Events)
		eventsHandler.RegisterRoutes(mux, limiter)
	}

	handler := corsMiddleware(cfg.API.AllowedOrigins, mux)

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.API.Addr,
			Handler:     handler,
			ReadTimeout: 10 * time.Second,
			// No WriteTimeout: the MJPEG feed holds its response
			// open for the lifetime of the client.
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		mux:    mux,
		logger: zap.L().Named("api-server"),
	}
}

// corsMiddleware adds CORS headers for the configured origins and
// answers preflight requests.
func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	wildcard := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && (wildcard || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// StartInBackground starts the server in a goroutine.
func (s *Server) StartInBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
