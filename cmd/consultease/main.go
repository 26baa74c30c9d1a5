// ConsultEase Central Core
//
// Entry point for the ConsultEase central system: the messaging and state
// synchronization service between student kiosks and faculty desk units.
// It owns the MQTT session, the faculty presence state machine and the
// consultation request lifecycle, and is designed to ride out broker and
// database outages without operator intervention.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/consultease/consultease-core/migrations"

	"github.com/consultease/consultease-core/internal/consultation"
	"github.com/consultease/consultease-core/internal/faculty"
	"github.com/consultease/consultease-core/internal/infrastructure/config"
	"github.com/consultease/consultease-core/internal/infrastructure/database"
	"github.com/consultease/consultease-core/internal/infrastructure/influxdb"
	"github.com/consultease/consultease-core/internal/infrastructure/logging"
	"github.com/consultease/consultease-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// statsInterval is how often pipeline counters are snapshotted into the
// history recorder.
const statsInterval = time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting ConsultEase central core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Open database and bootstrap schema
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		PoolSize:    cfg.Database.PoolSize,
		MaxRetries:  cfg.Database.MaxRetries,
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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	// Faculty roster
	facultyRepo := faculty.NewSQLiteRepository(db.DB)
	facultyRegistry := faculty.NewRegistry(facultyRepo)
	facultyRegistry.SetLogger(log)
	if err := facultyRegistry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading faculty registry: %w", err)
	}

	// Status history recorder (optional)
	var recorder *influxdb.Recorder
	if cfg.InfluxDB.Enabled {
		recorder, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, running without status history")
	}

	// Messaging service: owns the broker session, the publish pipeline and
	// the reconnection supervisor. Start returns immediately; the first
	// connection happens in the background.
	messaging := mqtt.NewService(cfg.MQTT, log)
	messaging.Start()
	defer func() {
		log.Info("stopping messaging service")
		messaging.Stop()
	}()
	log.Info("messaging service started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Faculty presence: synchronizer plus the desk unit message controller
	sequencer := &faculty.AtomicSequencer{}
	synchronizer := faculty.NewSynchronizer(db, facultyRepo, facultyRegistry, messaging, sequencer, log)
	if recorder != nil {
		synchronizer.SetRecorder(recorder)
	}

	facultyController := faculty.NewController(synchronizer, facultyRepo, facultyRegistry, log)
	if err := facultyController.Start(messaging); err != nil {
		return fmt.Errorf("starting faculty controller: %w", err)
	}

	// Consultation brokering
	consultationRepo := consultation.NewSQLiteRepository(db.DB)
	consultationController, err := consultation.NewController(consultationRepo, messaging, log)
	if err != nil {
		return fmt.Errorf("creating consultation controller: %w", err)
	}
	if recorder != nil {
		consultationController.SetRecorder(recorder)
	}
	if err := consultationController.Start(messaging); err != nil {
		return fmt.Errorf("starting consultation controller: %w", err)
	}

	if recorder != nil {
		go reportStats(ctx, messaging, recorder)
	}

	log.Info("ConsultEase central core running")
	<-ctx.Done()
	log.Info("shutdown signal received")

	return nil
}

// reportStats periodically snapshots pipeline counters into the history
// recorder until the context is cancelled.
func reportStats(ctx context.Context, messaging *mqtt.Service, recorder *influxdb.Recorder) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := messaging.Stats()
			recorder.WriteQueueStats(
				s.MessagesPublished,
				s.MessagesReceived,
				s.DroppedMessages,
				s.PublishErrors,
			)
		}
	}
}

// getConfigPath returns the config file path from argv or the default.
func getConfigPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return defaultConfigPath
}
