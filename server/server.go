package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/ledgerops/auth"
	"github.com/jonwraymond/ledgerops/health"
	"github.com/jonwraymond/ledgerops/ledger"
	"github.com/jonwraymond/ledgerops/observe"
	"github.com/jonwraymond/ledgerops/resilience"
)

// ErrNilService is returned by New without a ledger service.
var ErrNilService = errors.New("server: ledger service is nil")

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	Service *ledger.Service

	// Gate admits /api requests per partition. Nil admits everything.
	Gate *resilience.AdmissionGate

	// Partitioner derives partition keys. Nil partitions by client address.
	Partitioner *auth.Partitioner

	// Health backs /healthz, /readyz and /health. Nil registers an empty
	// aggregator.
	Health *health.Aggregator

	// MetricsHandler serves /metrics. Default: promhttp.Handler().
	MetricsHandler http.Handler

	Metrics observe.Metrics
	Logger  observe.Logger
}

// Server is the ledgerd HTTP front end.
type Server struct {
	cfg     Config
	service *ledger.Service
	gate    *resilience.AdmissionGate
	metrics observe.Metrics
	logger  observe.Logger
	handler http.Handler
}

// New builds a Server and its routes.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Service == nil {
		return nil, ErrNilService
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if deps.Partitioner == nil {
		deps.Partitioner = auth.NewPartitioner(nil, auth.PartitionConfig{})
	}
	if deps.Health == nil {
		deps.Health = health.NewAggregator(0)
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.Handler()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.NoopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}

	s := &Server{
		cfg:     cfg,
		service: deps.Service,
		gate:    deps.Gate,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(observe.Field{Key: "component", Value: "http"}),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/lancamento/getall", s.handleGetAll)
	api.HandleFunc("GET /api/lancamento/getbytipo/{tipo}", s.handleGetByType)
	api.HandleFunc("GET /api/lancamento/getbyid/{id}", s.handleGetByID)
	api.HandleFunc("GET /api/lancamento/saldos", s.handleBalances)
	api.HandleFunc("POST /api/lancamento/create", s.handleCreate)
	api.HandleFunc("PUT /api/lancamento/update/{id}", s.handleUpdate)
	api.HandleFunc("DELETE /api/lancamento/deletemany", s.handleDeleteMany)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.admit(api))
	health.RegisterHandlers(mux, deps.Health)
	mux.Handle("GET /metrics", deps.MetricsHandler)

	s.handler = deps.Partitioner.Middleware(s.logRequests(mux))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "listening", observe.Field{Key: "addr", Value: ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
