// Passage Core - Physical Access Control Platform
//
// This is the main entry point for the Passage Core application.
// Passage is the HR-facing backend for badge and biometric access control:
//   - Vendor-agnostic device adapters (Hikvision, stub simulator)
//   - Idempotent access-event ingestion over HTTP and MQTT
//   - Guest visit lifecycle with time-bound credentials
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/draymont/passage-core/migrations"

	"github.com/draymont/passage-core/internal/adapter"
	"github.com/draymont/passage-core/internal/adapter/hikvision"
	"github.com/draymont/passage-core/internal/adapter/stub"
	"github.com/draymont/passage-core/internal/api"
	"github.com/draymont/passage-core/internal/bridges/mqttevents"
	"github.com/draymont/passage-core/internal/device"
	"github.com/draymont/passage-core/internal/event"
	"github.com/draymont/passage-core/internal/infrastructure/config"
	"github.com/draymont/passage-core/internal/infrastructure/database"
	"github.com/draymont/passage-core/internal/infrastructure/influxdb"
	"github.com/draymont/passage-core/internal/infrastructure/logging"
	"github.com/draymont/passage-core/internal/infrastructure/mqtt"
	"github.com/draymont/passage-core/internal/visit"
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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Passage Core",
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

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	// Initialise visit service and the overdue-expiry sweeper
	visitRepo := visit.NewSQLiteRepository(db.DB)
	visits := visit.NewService(visitRepo, log)

	sweeper := visit.NewSweeper(visits, cfg.Visits.SweepIntervalDuration(), log)
	go sweeper.Run(ctx)
	log.Info("visit sweeper started", "interval", cfg.Visits.SweepIntervalDuration())

	// Initialise event pipeline
	eventRepo := event.NewSQLiteRepository(db.DB)
	pipeline := event.NewPipeline(eventRepo, registry, visits, log)

	// Initialise adapter factory
	factory, err := adapter.NewFactory(adapter.FactoryConfig{
		Preferred:     adapter.Type(cfg.Adapters.Preferred),
		FailoverOrder: parseAdapterTypes(cfg.Adapters.FailoverOrder),
		ProbeTimeout:  cfg.Adapters.ProbeTimeoutDuration(),
	}, map[adapter.Type]adapter.Constructor{
		adapter.TypeHikvision: func() adapter.DeviceAdapter { return hikvision.New(log) },
		adapter.TypeStub:      func() adapter.DeviceAdapter { return stub.New() },
	}, log)
	if err != nil {
		return fmt.Errorf("creating adapter factory: %w", err)
	}
	log.Info("adapter factory initialised", "preferred", cfg.Adapters.Preferred)

	// Connect to MQTT broker and start the event bridge (optional)
	var mqttClient *mqtt.Client
	var bridge *mqttevents.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
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

		bridge, err = mqttevents.New(mqttevents.Options{
			MQTTClient: &mqttBridgeAdapter{client: mqttClient},
			Ingestor:   pipeline,
			Presence:   registry,
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("creating MQTT event bridge: %w", err)
		}
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT event bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT event bridge")
			bridge.Stop()
		}()
		log.Info("MQTT event bridge started")
	} else {
		log.Info("MQTT disabled")
	}

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

		pipeline.SetRecorder(influxClient)
		factory.SetProbeObserver(func(s adapter.HealthStatus) {
			influxClient.WriteAdapterHealth(string(s.Type), s.Healthy, s.ResponseTime)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the HTTP API server
	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Registry: registry,
		Visits:   visits,
		Pipeline: pipeline,
		Factory:  factory,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Fan processed events out to WebSocket subscribers and, when the
	// bridge is running, to the MQTT core namespace.
	announcers := event.Announcers{srv.Hub()}
	if bridge != nil {
		announcers = append(announcers, bridge)
	}
	pipeline.SetAnnouncer(announcers)

	// Visit transitions reach the same consumers: WebSocket subscribers
	// always, InfluxDB when enabled.
	hub := srv.Hub()
	visits.SetNotifier(func(visitID string, from, to visit.Status) {
		hub.AnnounceVisitChange(map[string]string{
			"visit_id": visitID,
			"from":     string(from),
			"to":       string(to),
		})
		if influxClient != nil {
			influxClient.WriteVisitTransition(visitID, string(from), string(to))
		}
	})

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
	// 2. InfluxDB (if enabled)
	// 3. MQTT bridge and client (if enabled)
	// 4. Database

	log.Info("Passage Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PASSAGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PASSAGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// parseAdapterTypes converts configured adapter type names into typed values.
// Unknown names are dropped; the factory falls back to the stub regardless.
func parseAdapterTypes(names []string) []adapter.Type {
	types := make([]adapter.Type, 0, len(names))
	for _, name := range names {
		t := adapter.Type(name)
		if t.IsValid() {
			types = append(types, t)
		}
	}
	return types
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the event
// bridge's MQTTClient interface. The handler signatures match, but the
// bridge declares a plain func type rather than the infrastructure
// package's named MessageHandler type.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements mqttevents.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements mqttevents.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error {
	return a.client.Subscribe(topic, qos, handler)
}

// IsConnected implements mqttevents.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
