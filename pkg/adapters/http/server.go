package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultInterval        = time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Server exposes the state of a running graph.
type Server struct {
	Source   observability.Source
	Registry *prometheus.Registry
	Interval time.Duration
	Logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithRegistry exports metrics from reg instead of a private registry.
// The collector for the source is registered on it either way.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.Registry = reg
		}
	}
}

// WithInterval sets how often /events pushes a snapshot.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.Interval = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// NewHandler serves /healthz, /status, /status.txt, /events and /metrics for source.
func NewHandler(source observability.Source, opts ...Option) (http.Handler, error) {
	s := &Server{
		Source:   source,
		Registry: prometheus.NewRegistry(),
		Interval: DefaultInterval,
		Logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Registry.Register(observability.NewCollector(source)); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/status", s.GetStatus)
	r.Get("/status.txt", s.GetStatusText)
	r.Get("/events", s.SubscribeEvents)
	r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth reports ok while the graph has no failed model, 503 afterwards.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.Source.Snapshot().Failed {
		status, code = "failed", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status}, s.Logger)
}

// GetStatus returns the current snapshot as JSON.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Source.Snapshot(), s.Logger)
}

// GetStatusText returns the same table an interrupt prints.
func (s *Server) GetStatusText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := observability.NewPrinter(w).Print(s.Source.Snapshot()); err != nil {
		s.Logger.Warn("status response write failed", "err", err)
	}
}

// SubscribeEvents streams a snapshot every interval as server-sent events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	s.Logger.Debug("events subscriber connected", "remote", r.RemoteAddr)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		data, err := json.Marshal(s.Source.Snapshot())
		if err != nil {
			s.Logger.Error("encode snapshot", "err", err)
			return
		}
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
		flusher.Flush()

		select {
		case <-r.Context().Done():
			s.Logger.Debug("events subscriber disconnected", "remote", r.RemoteAddr)
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", DefaultShutdownTimeout, "err", err)
			return srv.Close()
		}
		logger.Info("status server stopped")
		return nil
	}
}
