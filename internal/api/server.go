package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/infrastructure/config"
	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/room"
	"github.com/avgate/avgate/internal/scenario"
	"github.com/avgate/avgate/internal/sse"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Publisher is the bus port the admin publish endpoint writes through.
// *mqtt.Client satisfies it.
type Publisher interface {
	PublishString(topic, payload string, qos byte, retained bool) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Devices   *device.Manager
	Scenarios *scenario.Manager
	Rooms     *room.Manager
	Events    *sse.Manager
	Bus       Publisher

	// Hub is the optional WebSocket relay, created externally so the event
	// fan-out can feed it before the server starts.
	Hub *Hub

	// Broker is the MQTT broker address reported by GET /system.
	Broker  string
	Version string
}

// Server is the HTTP surface of the gateway: the REST adapter over the
// device and scenario managers, the SSE streams, and the optional
// WebSocket relay.
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	secCfg config.SecurityConfig
	logger *logging.Logger

	devices   *device.Manager
	scenarios *scenario.Manager
	rooms     *room.Manager
	events    *sse.Manager
	bus       Publisher
	hub       *Hub

	broker  string
	version string

	server *http.Server
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device manager is required")
	}
	if deps.Scenarios == nil {
		return nil, fmt.Errorf("scenario manager is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("sse manager is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger.With("component", "api"),
		devices:   deps.Devices,
		scenarios: deps.Scenarios,
		rooms:     deps.Rooms,
		events:    deps.Events,
		bus:       deps.Bus,
		hub:       deps.Hub,
		broker:    deps.Broker,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub when one is configured,
// and launches the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub != nil {
		go s.hub.Run(srvCtx)
	}

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
// It waits up to gracefulShutdownTimeout for in-flight requests, then
// forcefully closes remaining connections.
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
