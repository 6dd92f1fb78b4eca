// BenchLink Core - laboratory equipment synchronization service
//
// This is the main entry point for the BenchLink Core application.
// BenchLink bridges bench instruments (microplate readers, thermoshakers,
// liquid-handling robots) to a supervisory network:
//   - Vendor drivers behind a uniform adapter interface
//   - Adaptive status polling with failure backoff
//   - Asynchronous measurement runs with completion detection
//   - MQTT command/ack/status topics plus a REST API
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/openbench/benchlink-core/migrations"

	"github.com/openbench/benchlink-core/internal/api"
	"github.com/openbench/benchlink-core/internal/audit"
	"github.com/openbench/benchlink-core/internal/bridges/supervisory"
	"github.com/openbench/benchlink-core/internal/drivers/sim"
	"github.com/openbench/benchlink-core/internal/infrastructure/config"
	"github.com/openbench/benchlink-core/internal/infrastructure/database"
	"github.com/openbench/benchlink-core/internal/infrastructure/influxdb"
	"github.com/openbench/benchlink-core/internal/infrastructure/logging"
	"github.com/openbench/benchlink-core/internal/infrastructure/mqtt"
	"github.com/openbench/benchlink-core/internal/instrument"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting BenchLink Core",
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
	db, err := database.Open(ctx, database.Config{
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

	history := instrument.NewHistory(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build instrument managers for every enabled kind
	managers, err := buildManagers(cfg, mqttClient, influxClient, history, log)
	if err != nil {
		return err
	}
	if len(managers) == 0 {
		return fmt.Errorf("no instruments enabled in configuration")
	}

	// Start pollers and health reporters, one per manager
	for _, m := range managers {
		poller := instrument.NewPoller(m, cfg.Instruments.Poll)
		poller.SetLogger(log)
		poller.Start(ctx)
		defer poller.Stop()

		health := instrument.NewHealthReporter(instrument.HealthReporterConfig{
			Kind:      m.Kind(),
			Version:   version,
			Topic:     mqtt.Topics{}.InstrumentHealth(string(m.Kind())),
			Publisher: mqttClient,
			State:     m,
			Registry:  m.Registry(),
			Logger:    log,
		})
		if err := health.PublishStarting(); err != nil {
			log.Warn("publishing starting status failed", "kind", m.Kind(), "error", err)
		}
		health.Start(ctx)
		defer health.Stop()

		log.Info("instrument manager started", "kind", m.Kind())
	}

	// Start the supervisory bridge (command dispatch over MQTT)
	bridge, err := supervisory.NewBridge(supervisory.BridgeOptions{
		Client:   mqttClient,
		Managers: managers,
		Audit:    auditRepo,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating supervisory bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisory bridge: %w", err)
	}
	defer func() {
		log.Info("stopping supervisory bridge")
		bridge.Stop()
	}()
	log.Info("supervisory bridge started")

	// Start the REST API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Managers: managers,
		History:  history,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Supervisory bridge
	// 3. Health reporters and pollers
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("BenchLink Core stopped")
	return nil
}

// buildManagers constructs a manager for every enabled instrument kind.
func buildManagers(cfg *config.Config, mqttClient *mqtt.Client, influxClient *influxdb.Client, history *instrument.History, log *logging.Logger) ([]*instrument.Manager, error) {
	kinds := []struct {
		kind instrument.Kind
		cfg  config.InstrumentConfig
	}{
		{instrument.KindReader, cfg.Instruments.Reader},
		{instrument.KindShaker, cfg.Instruments.Shaker},
		{instrument.KindRobot, cfg.Instruments.Robot},
	}

	publisher := supervisory.NewPublisher(mqttClient, log)

	var managers []*instrument.Manager
	for _, k := range kinds {
		if !k.cfg.Enabled {
			log.Info("instrument disabled", "kind", k.kind)
			continue
		}

		adapter, err := buildAdapter(k.kind, k.cfg)
		if err != nil {
			return nil, err
		}

		var progressFunc func(op instrument.Operation, ev instrument.ProgressEvent)
		if influxClient != nil {
			progressFunc = func(op instrument.Operation, ev instrument.ProgressEvent) {
				if ev.Reason == instrument.ReasonData {
					influxClient.WriteMeasurementProgress(op.DeviceID, op.ID, ev.CycleCurrent, ev.CycleTotal, ev.Value)
				}
			}
		}

		m := instrument.NewManager(instrument.ManagerConfig{
			Kind:         k.kind,
			Adapter:      adapter,
			Poll:         cfg.Instruments.Poll,
			Monitor:      cfg.Instruments.Monitor,
			Publisher:    newTelemetryPublisher(publisher, influxClient),
			History:      history,
			ProgressFunc: progressFunc,
			Logger:       log.With("instrument", string(k.kind)),
		})
		managers = append(managers, m)
	}

	return managers, nil
}

// buildAdapter selects the driver for one instrument kind.
//
// Only the simulated drivers ship with the core; hardware drivers live in
// vendor-specific modules and register their own adapters.
func buildAdapter(kind instrument.Kind, cfg config.InstrumentConfig) (instrument.Adapter, error) {
	if !cfg.Simulated {
		return nil, fmt.Errorf("no hardware driver available for %s (set instruments.%s.simulated: true)", kind, kind)
	}

	switch kind {
	case instrument.KindReader:
		return sim.NewReader(), nil
	case instrument.KindShaker:
		return sim.NewShaker(), nil
	case instrument.KindRobot:
		return sim.NewRobot(), nil
	default:
		return nil, fmt.Errorf("unknown instrument kind %q", kind)
	}
}

// telemetryPublisher fans snapshots out to MQTT and, when available,
// writes poll telemetry to InfluxDB.
type telemetryPublisher struct {
	mqtt   *supervisory.Publisher
	influx *influxdb.Client
}

func newTelemetryPublisher(mqttPub *supervisory.Publisher, influxClient *influxdb.Client) instrument.Publisher {
	return &telemetryPublisher{mqtt: mqttPub, influx: influxClient}
}

// PublishStatus implements instrument.Publisher.
func (p *telemetryPublisher) PublishStatus(kind instrument.Kind, conn instrument.ConnectionState, snap instrument.StatusSnapshot) {
	p.mqtt.PublishStatus(kind, conn, snap)

	if p.influx == nil || !conn.Connected {
		return
	}
	p.influx.WriteInstrumentMetric(string(kind), conn.ConnectedDeviceID, "temperature", snap.Temperature)
	if kind == instrument.KindShaker {
		p.influx.WriteInstrumentMetric(string(kind), conn.ConnectedDeviceID, "shaking_rpm", snap.ShakingRPM)
	}
}

// PublishOperation implements instrument.Publisher.
func (p *telemetryPublisher) PublishOperation(op instrument.Operation) {
	p.mqtt.PublishOperation(op)
}

// getConfigPath returns the configuration file path.
// Uses BENCHLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BENCHLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
