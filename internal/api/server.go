package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Serve runs the API until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout. The expired reset token sweeper
// and the metrics server share the API's lifetime.
func (api *Api) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              api.Config.Addr(),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       api.Config.Server.ReadTimeout,
		WriteTimeout:      api.Config.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go api.resets.RunCleanup(ctx, api.Config.Auth.ResetCleanupInterval)

	var metricsErr <-chan error
	metrics := NewMetricsServer(api.Config.Metrics.Addr, api.ready)
	if api.Config.Metrics.Addr != "" {
		errCh, err := metrics.Start(api.logger)
		if err != nil {
			return err
		}
		metricsErr = errCh
	}

	serveErr := make(chan error, 1)
	go func() {
		api.logger.Info("api server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = oops.Code("API_SERVE_FAILED").With("addr", srv.Addr).Wrap(err)
	case err, ok := <-metricsErr:
		if ok {
			runErr = oops.Code("METRICS_SERVE_FAILED").With("addr", api.Config.Metrics.Addr).Wrap(err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), api.Config.Server.ShutdownTimeout)
	defer done()

	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = oops.Code("API_SHUTDOWN_FAILED").Wrap(err)
	}
	if err := metrics.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	api.logger.Info("api server stopped")
	return runErr
}

// MetricsServer exposes Prometheus metrics and health probes on a separate
// listener so they are never reachable through the public API.
type MetricsServer struct {
	addr     string
	ready    func(ctx context.Context) error
	listener net.Listener
	server   *http.Server
	running  atomic.Bool
}

func NewMetricsServer(addr string, ready func(ctx context.Context) error) *MetricsServer {
	return &MetricsServer{addr: addr, ready: ready}
}

// Handler returns the metrics and probe routes.
func (s *MetricsServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	return mux
}

// Start begins serving in the background. The returned channel receives a
// serve error, if any, and is closed when the server stops.
func (s *MetricsServer) Start(logger *slog.Logger) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("metrics server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("METRICS_SERVE_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	srv := s.server
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("metrics server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that never started is a no-op.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown metrics server").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or "" when not running.
func (s *MetricsServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *MetricsServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

func (s *MetricsServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.ready == nil || s.ready(r.Context()) == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready\n"))
}
