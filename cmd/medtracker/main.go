// Medication Tracker - pill stock and days-of-supply service
//
// medtracker keeps a running pill count per medication, records doses and
// refills, and estimates how many days of supply remain. It is driven over
// a JWT-protected REST/WebSocket API and over MQTT service calls.
//
// Usage:
//
//	medtracker                   run the service
//	medtracker token -role ...   print a signed API token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/medication-tracker/internal/api"
	"github.com/nerrad567/medication-tracker/internal/audit"
	"github.com/nerrad567/medication-tracker/internal/auth"
	"github.com/nerrad567/medication-tracker/internal/configentry"
	"github.com/nerrad567/medication-tracker/internal/device"
	"github.com/nerrad567/medication-tracker/internal/entity"
	"github.com/nerrad567/medication-tracker/internal/exporter"
	"github.com/nerrad567/medication-tracker/internal/flow"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/config"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/database"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/influxdb"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/logging"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/metrics"
	"github.com/nerrad567/medication-tracker/internal/infrastructure/mqtt"
	"github.com/nerrad567/medication-tracker/internal/medication"
	"github.com/nerrad567/medication-tracker/internal/tracker"
	"github.com/nerrad567/medication-tracker/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// prunerInterval is how often expired state history is deleted.
const prunerInterval = time.Hour

// shutdownTimeout bounds the final restore-state flush.
const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled, then tears
// everything down in reverse order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting medication tracker",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"dose_guard", cfg.Tracker.DoseGuard,
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Registries and restore states are loaded before any entry is set up.
	entities := entity.NewRegistry(entity.NewSQLiteRepository(db.DB))
	entities.SetLogger(log)
	if refreshErr := entities.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log)
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	restore := entity.NewRestoreStore(entity.NewSQLiteRestoreRepository(db.DB))
	if loadErr := restore.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading restore states: %w", loadErr)
	}
	history := entity.NewSQLiteHistoryRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditor := audit.NewRecorder(auditRepo, log)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loop := entity.NewLoop()
	loop.SetLogger(log)
	go loop.Run(loopCtx) //nolint:errcheck // first Run never fails
	defer func() {
		stopLoop()
		<-loop.Done()
	}()

	states := entity.NewStateMachine()
	states.Listen(func(ev entity.Event) {
		if ev.New != nil {
			restore.Record(*ev.New)
		}
	})

	guard, err := medication.NewDoseGuard(cfg.Tracker.DoseGuard, cfg.Tracker.DoseCooldown, cfg.Location())
	if err != nil {
		return fmt.Errorf("building dose guard: %w", err)
	}

	m := metrics.New()
	index := tracker.NewIndex()
	services := tracker.NewServices(loop, index, m, log)

	// Optional infrastructure. Both are best-effort: the tracker keeps
	// working without a broker or a telemetry store.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.NewTopics(mqtt.DefaultTopicPrefix))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
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
	} else {
		log.Info("MQTT disabled")
	}

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, telemetry disabled", "url", cfg.InfluxDB.URL, "error", err)
		influxClient = nil
	default:
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	integration := tracker.NewIntegration(tracker.Deps{
		Loop:          loop,
		States:        states,
		Entities:      entities,
		Devices:       devices,
		Restore:       restore,
		Index:         index,
		Guard:         guard,
		RetryInterval: cfg.Tracker.LinkRetryInterval,
		Logger:        log,
	})
	entries := configentry.NewManager(tracker.Domain, configentry.NewSQLiteRepository(db.DB), integration)
	entries.SetLogger(log)
	// Unloads last, once the exporter has drained and detached.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		entries.Shutdown(shutdownCtx)
	}()

	health := map[string]api.HealthChecker{"database": db}
	if mqttClient != nil {
		health["mqtt"] = mqttClient
	}
	if influxClient != nil {
		health["influxdb"] = influxClient
	}

	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		MetricsCfg: cfg.Metrics,
		Logger:     log,
		States:     states,
		Entities:   entities,
		History:    history,
		Devices:    devices,
		Entries:    entries,
		Flows:      flow.NewManager(entries, index),
		Services:   services,
		Index:      index,
		Metrics:    m,
		Audit:      auditor,
		Health:     health,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// The exporter is attached before entries load so the first published
	// states reach every sink.
	sinks := []exporter.Sink{
		exporter.NewRestoreSink(restore),
		exporter.NewHistorySink(history),
		exporter.NewMetricsSink(m),
		exporter.NewBroadcastSink(apiServer.Hub()),
	}
	if mqttClient != nil {
		sinks = append(sinks, exporter.NewMQTTSink(mqttClient))
	}
	if influxClient != nil {
		sinks = append(sinks, exporter.NewTelemetrySink(influxClient))
	}
	exp := exporter.New(exporter.DefaultQueueSize, log, sinks...)
	detach := exp.Attach(states)
	exportCtx, stopExport := context.WithCancel(context.Background())
	go exp.Run(exportCtx)
	defer func() {
		detach()
		stopExport()
		<-exp.Done()
		if n := exp.Dropped(); n > 0 {
			log.Warn("state events dropped by exporter", "count", n)
		}
	}()

	if loadErr := entries.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading config entries: %w", loadErr)
	}
	log.Info("config entries loaded",
		"entries", len(entries.List()),
		"medications", len(index.StockEntityIDs()),
		"groups", len(index.Groups()),
	)
	// Runs before Shutdown unloads the entries, so the final quantities are
	// flushed even if the export queue dropped events.
	defer persistStates(states, restore, log)

	go exporter.NewPruner("state_history", history, cfg.Tracker.HistoryRetention, prunerInterval, log).Run(ctx)
	go exporter.NewPruner("audit_logs", auditRepo, cfg.Tracker.HistoryRetention, prunerInterval, log).Run(ctx)

	if mqttClient != nil {
		listener := tracker.NewCommandListener(mqttClient, services, byte(cfg.MQTT.QoS), log) //nolint:gosec // QoS validated 0-2
		listener.SetAuditor(auditor)
		if startErr := listener.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT command listener: %w", startErr)
		}
		defer func() {
			if stopErr := listener.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT command listener", "error", stopErr)
			}
		}()
	}

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// persistStates writes every current state to the restore store.
func persistStates(states *entity.StateMachine, restore *entity.RestoreStore, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, st := range states.All() {
		if err := restore.Save(ctx, st); err != nil {
			log.Error("failed to persist state", "entity_id", st.EntityID, "error", err)
		}
	}
}

// runToken implements "medtracker token": it signs an API token with the
// configured JWT secret and prints it.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "admin", "token subject (who the token is for)")
	role := fs.String("role", string(auth.RoleViewer), "role: viewer, operator or admin")
	ttl := fs.Duration("ttl", 0, "token lifetime (default from security.jwt.access_token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lifetime := *ttl
	if lifetime <= 0 && cfg.Security.JWT.AccessTokenTTL > 0 {
		lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(*subject, auth.Role(*role), cfg.Security.JWT.Secret, lifetime)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// getConfigPath returns MEDTRACKER_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("MEDTRACKER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
