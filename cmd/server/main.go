package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/matthewbaird/rentpulse/internal/automation"
	"github.com/matthewbaird/rentpulse/internal/config"
	"github.com/matthewbaird/rentpulse/internal/eventbus"
	"github.com/matthewbaird/rentpulse/internal/feed"
	"github.com/matthewbaird/rentpulse/internal/handler"
	"github.com/matthewbaird/rentpulse/internal/notify"
	"github.com/matthewbaird/rentpulse/internal/policy"
	"github.com/matthewbaird/rentpulse/internal/server"
	"github.com/matthewbaird/rentpulse/internal/snapshot"
	"github.com/matthewbaird/rentpulse/internal/store"
	"github.com/matthewbaird/rentpulse/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.App.SlogLevel()}))
	slog.SetDefault(logger.With("app", cfg.App.Name))
	logger = slog.Default()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clock := automation.SystemClock{}

	// Automation store.
	var st store.Store
	switch cfg.Store.Type {
	case "sqlite":
		sq, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		defer sq.Close()
		st = sq
		logger.Info("sqlite store ready", "path", cfg.Store.SQLitePath)
	default:
		st = store.NewMemoryStore()
	}

	// Snapshot feed.
	var snaps snapshot.Source = snapshot.NewMemorySource()
	if cfg.Snapshot.PostgresDSN != "" {
		pg, err := snapshot.OpenPostgres(ctx, cfg.Snapshot.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		snaps = pg
		logger.Info("postgres snapshot source ready")
	}

	// Notification sink.
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Redis.Enabled {
		rn, err := notify.NewRedisNotifier(ctx, notify.RedisConfig{
			Addr:     cfg.Redis.Address(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			return err
		}
		defer rn.Close()
		notifier = rn
		logger.Info("redis notifications enabled", "addr", cfg.Redis.Address(), "channel", cfg.Redis.Channel)
	}

	// Event bus and its consumers.
	hub := feed.NewHub(logger)
	bus := eventbus.New(cfg.Worker.EventBuffer, logger)
	bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	bus.Subscribe("notification", eventbus.NewNotificationConsumer(notifier))
	bus.Subscribe("feed", hub)
	bus.Start(ctx)
	defer bus.Stop()

	// Rule engine and action lifecycle.
	manager := automation.NewManager(st, clock, logger)
	manager.SetPublisher(bus)
	engine := automation.NewEngine(st, manager, clock, logger)
	engine.SetPublisher(bus)

	rules, settings := automation.DefaultRules(clock.Now()), automation.DefaultSettings()
	overwrite := false
	if cfg.Policy.File != "" {
		p, err := policy.Load(cfg.Policy.File, clock.Now())
		if err != nil {
			return err
		}
		rules, settings = p.Rules, p.Settings
		overwrite = cfg.Policy.OverwriteStore
		logger.Info("policy loaded", "file", cfg.Policy.File, "rules", len(rules))
	}
	if err := engine.Bootstrap(ctx, rules, settings, overwrite); err != nil {
		return err
	}

	sweeper := worker.NewExpirySweeper(manager, cfg.Worker.SweepInterval, cfg.Worker.SweepTimeout, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	batch := worker.NewBatchEvaluator(engine, cfg.Worker.BatchConcurrency)

	return server.Run(ctx, server.Config{
		Addr:            cfg.Server.Address(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Pricing:         handler.NewPricingHandler(),
		Automation:      handler.NewAutomationHandler(engine, manager, batch, snaps, logger),
		Feed:            hub,
		Logger:          logger,
	})
}
