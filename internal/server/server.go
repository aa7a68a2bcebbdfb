// Package server wires the orchestration core's HTTP surface: the remote
// agent protocol (internal/a2a) and the per-session server-sent-events
// stream, behind chi routing and permissive CORS. Grounded on the teacher's
// internal/api.Server (router/middleware/ServerOption/ListenAndServe shape)
// composed with internal/web/sse.Handler's SSE plumbing, retargeted from a
// single global event broadcast to one stream per session.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/agentkit-run/agentkit/internal/a2a"
	"github.com/agentkit-run/agentkit/internal/core"
	"github.com/agentkit-run/agentkit/internal/logging"
)

// Sessions is the subset of internal/session.Registry the SSE stream
// endpoint depends on.
type Sessions interface {
	Subscribe(sessionID string) (<-chan core.SessionOutput, func(), error)
	Info(sessionID string) (core.SessionInfo, bool)
}

// Server hosts the agent protocol and session-output stream over HTTP.
type Server struct {
	router   chi.Router
	a2a      *a2a.Server
	sessions Sessions
	log      *logging.Logger

	heartbeat   time.Duration
	corsOrigins []string
}

// Option configures the Server, matching the teacher's functional-options
// ServerOption pattern.
type Option func(*Server)

// WithCORSOrigins overrides the default wide-open CORS policy.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithHeartbeat overrides the SSE keep-alive comment interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

func NewServer(a2aServer *a2a.Server, sessions Sessions, log *logging.Logger, opts ...Option) *Server {
	s := &Server{
		a2a:         a2aServer,
		sessions:    sessions,
		log:         logging.Or(log).WithComponent("server"),
		heartbeat:   30 * time.Second,
		corsOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.loggingMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)

	r.Get("/health", s.a2a.HandleHealth)
	r.Get("/.well-known/agent.json", s.a2a.HandleAgentCard)

	r.Route("/a2a", func(r chi.Router) {
		r.Post("/message", s.a2a.HandleMessage)
		r.Get("/task/{taskID}", func(w http.ResponseWriter, r *http.Request) {
			s.a2a.HandleGetTask(w, r, chi.URLParam(r, "taskID"))
		})
		r.Get("/stream/{sessionID}", s.handleStream)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.log.Info("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

// handleStream serves the SSE streaming variant of §6.3: per-session output,
// replayed prefix then live tail, exactly as internal/session.Registry
// delivers it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel, err := s.sessions.Subscribe(sessionID)
	if err != nil {
		http.Error(w, "session not found: "+sessionID, http.StatusNotFound)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case out, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(out)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", out.Kind, payload)
			flusher.Flush()
		}
	}
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled,
// then shuts it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting agentkit server", "addr", addr)
	return srv.ListenAndServe()
}
