package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type ServerOptions struct {
	Addr     string
	Handlers *Handlers
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// Server is the daemon's HTTP surface.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultStatusListenAddress
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := routes(opts.Handlers)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
			// No write timeout: the event stream endpoint holds its
			// response open.
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func routes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("POST /api/jobs", h.SubmitJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/events", h.StreamJobEvents)
	mux.HandleFunc("GET /api/hooks", h.ListHooks)
	mux.HandleFunc("POST /api/hooks/{name}/enable", h.EnableHook)
	mux.HandleFunc("POST /api/hooks/{name}/disable", h.DisableHook)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully. Request
// contexts derive from ctx so open event streams end with the daemon instead
// of pinning Shutdown to its timeout.
func (s *Server) Run(ctx context.Context) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("status server failed to start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("status server shutdown error", zap.Error(err))
			return err
		}
		s.logger.Info("status server stopped")
		return nil
	}
}
