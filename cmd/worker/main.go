// Package main is the entry point of the Blackout matching worker.
//
// The worker runs two scheduled jobs:
//   - weekly_matching pairs the eligible pool every Monday 00:00
//   - expire_chats closes matches whose week has ended and purges their chats
//
// With WORKER_RUN_ONCE=cycle|sweep it runs a single job and exits, for
// deployments that drive the worker from an external cron.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	goredis "github.com/redis/go-redis/v9"

	"github.com/blackout-hub/blackout/config"
	"github.com/blackout-hub/blackout/internal/application/command"
	"github.com/blackout-hub/blackout/internal/application/eventhandler"
	"github.com/blackout-hub/blackout/internal/application/query"
	"github.com/blackout-hub/blackout/internal/domain/matching"
	"github.com/blackout-hub/blackout/internal/domain/shared"
	"github.com/blackout-hub/blackout/internal/infrastructure/messaging"
	"github.com/blackout-hub/blackout/internal/infrastructure/metrics"
	"github.com/blackout-hub/blackout/internal/infrastructure/persistence/postgres"
	"github.com/blackout-hub/blackout/internal/infrastructure/persistence/redis"
	"github.com/blackout-hub/blackout/internal/infrastructure/scheduler"
	"github.com/blackout-hub/blackout/internal/infrastructure/scheduler/jobs"
	ophttp "github.com/blackout-hub/blackout/internal/interface/http"
	"github.com/blackout-hub/blackout/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting Blackout worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"run_once", cfg.App.RunOnce,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DATABASE
	// ─────────────────────────────────────────────────────────────────────────
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.ConnectTimeout = cfg.Database.ConnectTimeout

	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	participants := postgres.NewParticipantRepository(dbConn)
	matches := postgres.NewMatchRepository(dbConn)
	questionSets := postgres.NewQuestionSetRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional: cycle lock and remote events)
	// ─────────────────────────────────────────────────────────────────────────
	var rdb *goredis.Client
	if !cfg.Redis.Disabled {
		rdb, err = redis.NewClient(ctx, redisConfig(cfg))
		if err != nil {
			// Unlocked cycles still cannot double-book: match_slots is unique
			// per participant and week.
			log.Warn("redis unavailable, running without cycle lock and remote events", "error", err)
			rdb = nil
		} else {
			defer func() { _ = rdb.Close() }()
			log.Info("redis connection established", "addr", redisConfig(cfg).Addr())
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENTS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = true
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)
	defer func() {
		_ = bus.Close()
		stats := bus.Stats()
		log.Info("event bus closed",
			"published", stats.Published,
			"handler_failures", stats.HandlerFailures,
		)
	}()

	if err := eventhandler.NewAuditLogHandler(log).Register(bus); err != nil {
		return fmt.Errorf("failed to register audit log: %w", err)
	}

	var publisher shared.EventPublisher = bus
	var locker jobs.Locker
	if rdb != nil {
		keys := redis.NewKeys(cfg.Redis.KeyPrefix)
		remote, err := messaging.NewRedisPublisher(rdb, bus, messaging.RedisPublisherConfig{
			Channel: keys.Channel(cfg.Redis.EventsChannel),
			Logger:  log,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis publisher: %w", err)
		}
		publisher = remote
		locker = redis.NewLocker(rdb, keys, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New(cfg.Observability.MetricsNamespace)
		m.RegisterEventBus(func() (int64, int64, int64) {
			stats := bus.Stats()
			return stats.Published, stats.HandlerSuccess, stats.HandlerFailures
		})
	}

	cycleCfg := command.DefaultRunMatchingCycleConfig()
	cycleCfg.MinPoolSize = cfg.Matching.MinPoolSize
	cycleCfg.Workers = cfg.Matching.ScoringWorkers
	cycleCfg.Adjustment = adjustmentConfig(cfg)

	cycleHandler := command.NewRunMatchingCycleHandler(command.RunMatchingCycleDeps{
		Pool:         participants,
		History:      matches,
		Matches:      matches,
		QuestionSets: questionSets,
		Publisher:    publisher,
	}, cycleCfg, log)

	sweepHandler := command.NewSweepExpiredChatsHandler(matches, publisher, log)
	overviewHandler := query.NewGetWeekOverviewHandler(matches, participants)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	weeklyCfg := jobs.DefaultWeeklyMatchingConfig()
	weeklyCfg.Location = cfg.App.Location
	weeklyCfg.LockTTL = cfg.Matching.LockTTL

	var (
		cycleObserver jobs.CycleObserver
		sweepObserver jobs.SweepObserver
		jobObserver   scheduler.Observer
	)
	if m != nil {
		cycleObserver, sweepObserver, jobObserver = m, m, m
	}

	weeklyJob := jobs.NewWeeklyMatchingJob(cycleHandler, questionSets, locker, cycleObserver, log, weeklyCfg)
	expireJob := jobs.NewExpireChatsJob(sweepHandler, sweepObserver, log)

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:       log,
		Timezone:     cfg.App.Location,
		JobTimeout:   cfg.Scheduler.JobTimeout,
		TickInterval: cfg.Scheduler.TickInterval,
		Observer:     jobObserver,
	})

	weekly, err := scheduler.ParseCronSchedule(cfg.Scheduler.WeeklyCron)
	if err != nil {
		return fmt.Errorf("invalid weekly schedule: %w", err)
	}
	sweepEvery, err := scheduler.NewIntervalSchedule(cfg.Scheduler.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid sweep interval: %w", err)
	}
	if err := sched.Register(weeklyJob, weekly); err != nil {
		return err
	}
	if err := sched.Register(expireJob, sweepEvery); err != nil {
		return err
	}
	for _, name := range cfg.Scheduler.PausedJobs {
		if err := sched.DisableJob(name); err != nil {
			return fmt.Errorf("pause job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. RUN-ONCE MODE
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.App.RunOnce != "" {
		name := map[string]string{"cycle": weeklyJob.Name(), "sweep": expireJob.Name()}[cfg.App.RunOnce]
		result, err := sched.RunNow(ctx, name)
		if err != nil {
			return fmt.Errorf("run once %s: %w", name, err)
		}
		log.Info("run once completed", "job", name, "duration", result.Duration.String())
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. OPS HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var server *ophttp.Server
	var serverErr <-chan error
	if cfg.HTTP.Enabled {
		health := handlers.NewCompositeHealthChecker(cfg.App.Version,
			handlers.WithCheckTimeout(cfg.HTTP.HealthCheckTimeout))
		health.AddCheck("postgres", handlers.NewDatabaseCheck(dbConn))
		if rdb != nil {
			health.AddOptionalCheck("redis", func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})
		}

		httpCfg := ophttp.DefaultConfig()
		httpCfg.Host = cfg.HTTP.Host
		httpCfg.Port = cfg.HTTP.Port
		httpCfg.EnableMetrics = m != nil

		deps := ophttp.Dependencies{
			HealthChecker: health,
			Jobs:          sched,
			WeekOverview:  overviewHandler,
			Location:      cfg.App.Location,
			Logger:        log,
		}
		if m != nil {
			deps.Metrics = m.Handler()
		}

		server = ophttp.NewServer(httpCfg, deps)
		serverErr = server.StartAsync()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN UNTIL SIGNAL
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled, serving ops endpoints only")
	}

	log.Info("Blackout worker is running")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if sched.IsRunning() {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Error("failed to stop scheduler", "error", err)
		}
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop ops server", "error", err)
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging: JSON for log aggregation, text
// for local runs.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	format := cfg.Observability.LogFormat
	if format == "" && !cfg.IsProduction() {
		format = "text"
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("service", cfg.App.Name)
	slog.SetDefault(log)

	return log
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.KeyPrefix = cfg.Redis.KeyPrefix
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

func adjustmentConfig(cfg *config.Config) matching.AdjustmentConfig {
	ac := matching.DefaultAdjustmentConfig()
	ac.HistoryPenalty = cfg.Matching.HistoryPenalty
	ac.NewcomerWindow = cfg.Matching.NewcomerWindow
	ac.NewcomerBoost = cfg.Matching.NewcomerBoost
	ac.DistanceThresholdKm = cfg.Matching.DistanceThresholdKm
	ac.DistanceDecayKm = cfg.Matching.DistanceDecayKm
	ac.DistanceFloor = cfg.Matching.DistanceFloor
	return ac
}
