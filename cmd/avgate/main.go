// AV Gateway - device integration gateway.
//
// This is the main entry point for the AV Gateway application. The gateway
// bridges heterogeneous AV and IR devices onto an MQTT bus, exposing each as
// a Wiren Board-compatible virtual device plus a REST/SSE control surface,
// with declarative multi-device scenarios on top.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/avgate/avgate/internal/device/drivers" // registers device classes
	_ "github.com/avgate/avgate/migrations"              // registers embedded migrations

	"github.com/avgate/avgate/internal/api"
	"github.com/avgate/avgate/internal/device"
	"github.com/avgate/avgate/internal/guard"
	"github.com/avgate/avgate/internal/infrastructure/config"
	"github.com/avgate/avgate/internal/infrastructure/database"
	"github.com/avgate/avgate/internal/infrastructure/influxdb"
	"github.com/avgate/avgate/internal/infrastructure/logging"
	"github.com/avgate/avgate/internal/infrastructure/mqtt"
	"github.com/avgate/avgate/internal/room"
	"github.com/avgate/avgate/internal/scenario"
	"github.com/avgate/avgate/internal/sse"
	"github.com/avgate/avgate/internal/state"
	"github.com/avgate/avgate/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the manager teardown sequence after the run
// context is cancelled.
const shutdownTimeout = 30 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,cyclop // Linear startup sequence; splitting hurts readability
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AV Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// State repository over the key-value store
	repo := state.NewRepository(db, log)
	if err := repo.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising state repository: %w", err)
	}

	// MQTT client. Connect is deferred until the fleet is constructed:
	// device construction registers the offline will messages, and the
	// session will is captured when Connect builds the client options.
	bus := mqtt.New(cfg.MQTT)
	bus.SetLogger(log)
	bus.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	bus.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Event fan-out: SSE always, WebSocket hub when enabled
	events := sse.NewManager(cfg.SSE, log)
	var hub *api.Hub
	if cfg.WebSocket.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
	}
	fan := api.NewFanout(events, hub)

	// Device fleet
	maintGuard := guard.New(cfg.Maintenance, log)
	devices := device.NewManager(repo, bus, maintGuard, fan, log)

	deviceConfigs, err := device.LoadConfigDir(cfg.Paths.DevicesDir, log)
	if err != nil {
		return fmt.Errorf("loading device configs: %w", err)
	}
	devices.LoadDevices(deviceConfigs)
	log.Info("devices loaded", "count", len(devices.DeviceIDs()))

	// State telemetry mirrors numeric device state into InfluxDB
	recorder := telemetry.NewRecorder(nil, log)
	if influxClient != nil {
		recorder = telemetry.NewRecorder(influxClient, log)
	}
	if recorder.Enabled() {
		devices.SetStateSink(recorder.RecordState)
		log.Info("state telemetry enabled")
	}

	// Rooms (optional layout file)
	rooms := room.NewManager(log)
	if err := rooms.Load(cfg.Paths.RoomsFile); err != nil {
		return fmt.Errorf("loading room layout: %w", err)
	}

	// Scenario engine over the fleet
	scenarios := scenario.NewManager(cfg.Paths.ScenariosDir, repo, devices, rooms, fan, log)
	if err := scenarios.LoadScenarios(); err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}
	log.Info("scenarios loaded", "count", len(scenarios.ScenarioIDs()))

	// Project each scenario as a virtual device before the fleet goes live so
	// their controls are announced alongside the real devices.
	for _, adapter := range scenario.BuildWBAdapters(scenarios, bus, log) {
		devices.AddDevice(adapter)
	}

	// Connect to MQTT broker
	if err := bus.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Bring the fleet online: restore persisted state, announce virtual
	// devices, bind inbound subscriptions.
	if err := devices.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising devices: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		devices.Shutdown(shutdownCtx)
	}()

	// Restore the active scenario, if one survived the restart
	if err := scenarios.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising scenarios: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		scenarios.Shutdown(shutdownCtx)
	}()

	if cfg.Paths.WatchScenarios {
		if err := scenarios.WatchDirectory(); err != nil {
			log.Warn("scenario hot reload unavailable", "error", err)
		} else {
			log.Info("watching scenario directory", "path", cfg.Paths.ScenariosDir)
		}
	}

	defer events.Shutdown()

	// REST/SSE/WebSocket surface
	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Logger:    log,
		Devices:   devices,
		Scenarios: scenarios,
		Rooms:     rooms,
		Events:    events,
		Bus:       bus,
		Hub:       hub,
		Broker:    fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, bus, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (stop intake)
	// 2. SSE streams
	// 3. Scenario engine
	// 4. Device fleet (final persistence, offline markers)
	// 5. InfluxDB (if enabled)
	// 6. MQTT
	// 7. Database

	log.Info("AV Gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AVGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AVGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - bus: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, bus *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := bus.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
