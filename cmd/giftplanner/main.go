// Gift Planner Core
//
// This is the main entry point for the Gift Planner core service. It owns the
// SQLite database, applies the embedded schema migrations and reports
// statement cache statistics to MQTT and InfluxDB.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	_ "github.com/nerrad567/giftplanner-core/migrations"

	"github.com/nerrad567/giftplanner-core/internal/audit"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/config"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/database"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/logging"
	"github.com/nerrad567/giftplanner-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/giftplanner-core/internal/monitor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// healthCheckTimeout bounds the startup health checks.
const healthCheckTimeout = 10 * time.Second

// cli defines the command-line interface.
type cli struct {
	Config string `name:"config" short:"c" help:"Path to the YAML configuration file" env:"GIFTPLANNER_CONFIG" default:"configs/config.yaml" type:"path"`

	Run     runCmd     `cmd:"" default:"1" help:"Open the database, apply migrations and report cache statistics until interrupted"`
	Migrate migrateCmd `cmd:"" help:"Apply pending schema migrations, or roll back the latest with --down"`
	Status  statusCmd  `cmd:"" help:"Show migration status, engine health and statement cache statistics"`
	Audit   auditCmd   `cmd:"" help:"List recorded audit log entries, newest first"`
	Version versionCmd `cmd:"" help:"Print version information"`
}

// app is bound into every command's Run method.
type app struct {
	ctx        context.Context
	configPath string
	out        io.Writer
}

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute parses args and runs the selected command, separated from main
// for testability.
func execute(ctx context.Context, args []string, out io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("giftplanner"),
		kong.Description("Gift Planner Core - SQLite engine with statement cache telemetry"),
		kong.UsageOnError(),
		kong.Writers(out, out),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err != nil {
		return fmt.Errorf("building command line: %w", err)
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	return kctx.Run(&app{ctx: ctx, configPath: c.Config, out: out})
}

// load reads the configuration and builds the logger it describes.
func (a *app) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openEngine opens the configured database.
func openEngine(cfg *config.Config, log *logging.Logger) (*database.Engine, error) {
	engine, err := database.Open(database.Config{
		Path:          cfg.Database.Path,
		Debug:         cfg.Database.Debug,
		CacheCapacity: cfg.Database.CacheCapacity,
		WALMode:       cfg.Database.WALMode,
		BusyTimeout:   cfg.Database.BusyTimeout,
		ForeignKeys:   cfg.Database.ForeignKeys,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return engine, nil
}

// closeEngine closes the engine, logging any failure.
func closeEngine(engine *database.Engine, log *logging.Logger) {
	log.Info("closing database")
	if err := engine.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}

// runCmd is the long-running service.
type runCmd struct{}

// Run opens the engine, migrates, connects the optional telemetry services,
// starts the cache reporter and blocks until the context is cancelled.
func (r *runCmd) Run(a *app) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}
	log.Info("starting Gift Planner Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", a.configPath,
	)

	engine, err := openEngine(cfg, log)
	if err != nil {
		return err
	}
	defer closeEngine(engine, log)
	log.Info("database connected", "path", engine.Path(), "engine_id", engine.ID())

	applied, err := applyMigrations(a.ctx, engine, "core")
	if err != nil {
		return err
	}
	log.Info("database migrations complete", "applied", applied)

	var sinks []monitor.StatsSink

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
		sinks = append(sinks, monitor.NewMQTTSink(mqttClient))
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
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
		sinks = append(sinks, monitor.NewInfluxSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(a.ctx, engine, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Monitor.Enabled {
		reporter := monitor.NewReporter(engine, monitor.Config{
			Site:     cfg.Site.ID,
			Interval: cfg.GetMonitorInterval(),
			Sinks:    sinks,
		})
		reporter.SetLogger(log)

		if mqttClient != nil {
			if err := mqttClient.Subscribe(mqtt.Topics{}.DatabaseStatsRequest(), byte(cfg.MQTT.QoS), reporter.HandleStatsRequest); err != nil {
				log.Warn("stats request subscription failed", "error", err)
			}
		}

		reporter.Start(a.ctx)
		defer func() {
			log.Info("stopping cache reporter")
			reporter.Stop()
		}()
		log.Info("cache reporter started", "interval", reporter.Interval(), "sinks", len(sinks))
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-a.ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: reporter, InfluxDB, MQTT, database.
	return nil
}

// healthCheck verifies the engine and every enabled service. The engine
// check result is also written to InfluxDB when it is enabled.
func healthCheck(ctx context.Context, engine *database.Engine, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	dbErr := engine.HealthCheck(ctx)
	if influxClient != nil {
		influxClient.WriteEngineHealth(engine.ID(), dbErr == nil, time.Since(start))
	}
	if dbErr != nil {
		return fmt.Errorf("database: %w", dbErr)
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

// applyMigrations runs pending migrations and, when any were applied,
// records a migrate entry in the audit log.
func applyMigrations(ctx context.Context, engine *database.Engine, source string) (int, error) {
	_, pending, err := engine.GetMigrationStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading migration status: %w", err)
	}

	if err := engine.Migrate(ctx); err != nil {
		return 0, fmt.Errorf("running migrations: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	versions := make([]string, len(pending))
	for i, m := range pending {
		versions[i] = m.Version
	}
	err = audit.NewSQLiteRepository(engine).Create(ctx, &audit.AuditLog{
		Action:     "migrate",
		EntityType: "schema",
		Source:     source,
		Details:    map[string]any{"versions": versions},
	})
	if err != nil {
		return len(pending), fmt.Errorf("recording migration: %w", err)
	}
	return len(pending), nil
}

// migrateCmd applies or rolls back migrations.
type migrateCmd struct {
	Down bool `help:"Roll back the most recently applied migration instead of applying pending ones"`
}

func (m *migrateCmd) Run(a *app) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return err
	}
	defer closeEngine(engine, log)

	if m.Down {
		if err := engine.MigrateDown(a.ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		fmt.Fprintln(a.out, "migration rolled back")
		return nil
	}

	applied, err := applyMigrations(a.ctx, engine, "cli")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d migrations applied\n", applied)
	return nil
}

// statusCmd reports on the database without changing it.
type statusCmd struct{}

func (s *statusCmd) Run(a *app) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return err
	}
	defer closeEngine(engine, log)

	health := "ok"
	if err := engine.HealthCheck(a.ctx); err != nil {
		health = err.Error()
	}

	applied, pending, err := engine.GetMigrationStatus(a.ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}

	stats := engine.Cache().Stats()
	fmt.Fprintf(a.out, "database:   %s\n", engine.Path())
	fmt.Fprintf(a.out, "engine id:  %s\n", engine.ID())
	fmt.Fprintf(a.out, "health:     %s\n", health)
	fmt.Fprintf(a.out, "migrations: %d applied, %d pending\n", len(applied), len(pending))
	for _, m := range pending {
		fmt.Fprintf(a.out, "  pending %s %s\n", m.Version, m.Name)
	}
	fmt.Fprintf(a.out, "cache:      %d/%d entries, %d hits, %d misses\n",
		stats.Entries, stats.Capacity, stats.Hits, stats.Misses)
	return nil
}

// auditCmd lists audit log entries.
type auditCmd struct {
	Action     string `help:"Only show entries with this action"`
	EntityType string `name:"entity-type" help:"Only show entries for this entity type"`
	Limit      int    `default:"50" help:"Maximum entries to show (at most 200)"`
	Offset     int    `help:"Entries to skip"`
}

func (c *auditCmd) Run(a *app) error {
	cfg, log, err := a.load()
	if err != nil {
		return err
	}

	engine, err := openEngine(cfg, log)
	if err != nil {
		return err
	}
	defer closeEngine(engine, log)

	result, err := audit.NewSQLiteRepository(engine).List(a.ctx, audit.Filter{
		Action:     c.Action,
		EntityType: c.EntityType,
		Limit:      c.Limit,
		Offset:     c.Offset,
	})
	if err != nil {
		return fmt.Errorf("listing audit logs: %w", err)
	}

	fmt.Fprintf(a.out, "%d of %d entries\n", len(result.Logs), result.Total)
	for _, l := range result.Logs {
		fmt.Fprintf(a.out, "%s  %s  %-8s %s", l.CreatedAt.Format(time.RFC3339), l.ID, l.Action, l.EntityType)
		if l.EntityID != "" {
			fmt.Fprintf(a.out, "/%s", l.EntityID)
		}
		fmt.Fprintf(a.out, "  (%s)\n", l.Source)
	}
	return nil
}

// versionCmd prints version information.
type versionCmd struct{}

func (v *versionCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "giftplanner version %s (commit %s, built %s)\n", version, commit, date)
	return nil
}
