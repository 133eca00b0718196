// P1 video-stream bridge
//
// This is the main entry point of the bridge. It serves the latest JPEG
// frame of P1-series printer cameras over HTTP:
//   - One TLS streaming session per device, shared by every caller
//   - Sessions expire after a fixed frame budget and restart on demand
//   - Optional MQTT, InfluxDB and SQLite integrations for session events
//
// "videostream migrate up|down|status" manages the session history schema
// without starting the bridge.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/p1-videostream/internal/api"
	"github.com/nerrad567/p1-videostream/internal/bridges/p1"
	"github.com/nerrad567/p1-videostream/internal/events"
	"github.com/nerrad567/p1-videostream/internal/history"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/config"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/database"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/influxdb"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/logging"
	"github.com/nerrad567/p1-videostream/internal/infrastructure/mqtt"
	"github.com/nerrad567/p1-videostream/internal/metrics"
	"github.com/nerrad567/p1-videostream/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnv names the variable holding the configuration file path.
const configEnv = "VIDEOSTREAM_CONFIG"

// historyPruneInterval is how often finished sessions past retention are deleted.
const historyPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting video-stream bridge",
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
		"listen_address", cfg.Server.ListenAddress,
		"max_connections", cfg.Server.MaxConnections,
	)

	m := metrics.New("")
	checks := make(map[string]api.HealthChecker)

	fanout := events.NewFanout(events.DefaultQueueSize)
	fanout.SetLogger(log)
	fanout.SetOnDrop(func(sink string) {
		m.EventsDropped.WithLabelValues(sink).Inc()
	})
	fanout.Add("metrics", events.MetricsSink{Metrics: m})

	hub := api.NewHub(api.DefaultHubConfig(), log)
	hub.SetOnClientCount(func(n int) { m.EventClients.Set(float64(n)) })
	fanout.Add("websocket", hub)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		fanout.AddQueued("mqtt", events.MQTTSink{
			Publisher: mqttClient,
			Topics:    mqttClient.Topics(),
			Logger:    log,
		})
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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

		fanout.Add("influxdb", events.InfluxSink{Writer: influxClient})
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open session history database (optional)
	var repo *history.Repository
	if cfg.Database.Enabled {
		db, dbErr := openDatabase(ctx, cfg.Database)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", db.Path())

		repo = history.NewRepository(db.DB)
		fanout.AddQueued("history", events.HistorySink{Recorder: repo, Logger: log})
		checks["database"] = db
	} else {
		log.Info("session history disabled")
	}

	registry := p1.InitDefault(p1.WorkerConfig{
		FrameBudget:   cfg.Stream.FrameBudget,
		FrameInterval: cfg.Stream.FrameInterval,
		Transport: p1.TransportConfig{
			DialTimeout: cfg.Stream.DialTimeout,
			IOTimeout:   cfg.Stream.IOTimeout,
		},
		Observer: fanout,
		Logger:   log,
	})

	if mqttClient != nil {
		topic := mqttClient.Topics().StartCommand()
		if subErr := mqttClient.Subscribe(topic, events.StartCommandHandler(registry, log)); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, subErr)
		}
		log.Info("listening for start commands", "topic", topic)
	}

	deps := api.Deps{
		Server:   cfg.Server,
		Stream:   cfg.Stream,
		Security: cfg.Security,
		Logger:   log,
		Frames:   registry,
		Metrics:  m,
		Hub:      hub,
		Checks:   checks,
		SiteDir:  os.Getenv("VIDEOSTREAM_SITE_DIR"),
		Version:  version,
	}
	if repo != nil {
		deps.History = repo
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fanout.Run(gctx)
		return nil
	})
	g.Go(func() error {
		registry.RunReaper(gctx, cfg.Stream.ReaperInterval)
		return nil
	})
	if repo != nil && cfg.Database.HistoryRetention > 0 {
		g.Go(func() error {
			pruneHistory(gctx, repo, cfg.Database.HistoryRetention, log)
			return nil
		})
	}

	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := server.Close(); err != nil {
		log.Error("error closing API server", "error", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("video-stream bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VIDEOSTREAM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return config.DefaultPath
}

// openDatabase opens the history database and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// pruneHistory deletes finished sessions older than retention, once at
// startup and then every historyPruneInterval until ctx is cancelled.
func pruneHistory(ctx context.Context, repo *history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning session history", "error", err)
		case n > 0:
			log.Info("pruned session history", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
