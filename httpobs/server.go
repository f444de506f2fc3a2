// Package httpobs serves the monitoring-only HTTP surface: /healthz,
// /readyz, and /metrics. It carries no business actions — frontends for
// the actual fleet operations (HTTP/JSON, gRPC, WebSocket, MCP) are out of
// scope here and live behind the corecontract.Core interface instead.
package httpobs

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"fleetcore/logger"
	"fleetcore/monitoring"
)

// Server exposes operational endpoints on their own listener, separate
// from any business-facing frontend.
type Server struct {
	health *monitoring.HealthChecker
	sink   monitoring.Sink
	srv    *http.Server
}

// New builds the monitoring mux. allowedOrigins controls CORS on /metrics
// and /readyz, mirroring the teacher's EnabCors usage on its main router.
func New(addr string, health *monitoring.HealthChecker, sink monitoring.Sink, allowedOrigins []string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET"},
	}).Handler)

	r.Get("/healthz", monitoring.LivezHandler())
	r.Get("/readyz", health.ReadyzHandler())
	r.Handle("/metrics", sink.Handler())

	return &Server{
		health: health,
		sink:   sink,
		srv:    &http.Server{Addr: addr, Handler: r},
	}
}

// Handler returns the underlying mux, primarily for tests that want to
// exercise routes without binding a real listener.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Close shuts the server down directly, for callers (like shutdown.Coordinator)
// driving termination explicitly rather than through ctx cancellation passed
// to Listen.
func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Listen runs the server until ctx is cancelled, then shuts it down within
// a fixed grace period.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting monitoring server", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
