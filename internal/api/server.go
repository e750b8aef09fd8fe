package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/configentry"
	"github.com/nerrad567/medication-tracker/internal/device"
	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/flow"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/config"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/logging"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/metrics"
	"github.com/nerrad567/medication-tracker/internal/tracker"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every dependency the health endpoint reports.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	MetricsCfg  config.MetricsConfig
	Logger      *logging.Logger
	States      *entity.StateMachine
	Entities    *entity.Registry
	History     entity.HistoryRepository
	Devices     *device.Registry
	Entries     *configentry.Manager
	Flows       *flow.Manager
	Services    *tracker.Services
	Index       *tracker.Index
	Metrics     *metrics.Metrics
	Hub         *Hub
	// Audit is optional; nil disables the audit trail.
	Audit *audit.Recorder
	// Health lists optional components by name, e.g. "database", "mqtt".
	Health  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	states     *entity.StateMachine
	entities   *entity.Registry
	history    entity.HistoryRepository
	devices    *device.Registry
	entries    *configentry.Manager
	flows      *flow.Manager
	services   *tracker.Services
	index      *tracker.Index
	metrics    *metrics.Metrics
	audit      *audit.Recorder
	health     map[string]HealthChecker
	version    string
	startTime  time.Time
	tickets    *ticketStore
	server     *http.Server
	hub        *Hub
	ownHub     bool               // true if the hub was created by Start
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.States == nil || deps.Entities == nil {
		return nil, fmt.Errorf("state machine and entity registry are required")
	}
	if deps.Entries == nil || deps.Flows == nil || deps.Services == nil || deps.Index == nil {
		return nil, fmt.Errorf("config entries, flows, services and index are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		metricsCfg: deps.MetricsCfg,
		logger:     deps.Logger,
		states:     deps.States,
		entities:   deps.Entities,
		history:    deps.History,
		devices:    deps.Devices,
		entries:    deps.Entries,
		flows:      deps.Flows,
		services:   deps.Services,
		index:      deps.Index,
		metrics:    deps.Metrics,
		audit:      deps.Audit,
		health:     deps.Health,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
		hub:        deps.Hub,
	}, nil
}

// Hub returns the WebSocket hub, creating it on first use so the exporter
// can be wired before Start.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.ownHub = true
	}
	return s.hub
}

// Handler returns the fully wired router. Used by Start and by tests.
func (s *Server) Handler() http.Handler {
	s.Hub()
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	hub := s.Hub()
	if s.ownHub {
		go hub.Run(srvCtx)
	}

	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
