package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"grass_auto/internal/config"
	"grass_auto/internal/engine"
	"grass_auto/internal/logging"
	"grass_auto/internal/notify"
	"grass_auto/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Debug)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A store that cannot initialize is fatal before any worker starts.
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		logger.Fatal("open store", zap.String("path", cfg.Storage.SQLitePath), zap.Error(err))
	}
	defer store.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		notifier = notify.NewEmail(cfg.Notify)
	}

	eng := engine.New(engine.Options{
		Config:   cfg,
		Store:    store,
		Log:      logger,
		Notifier: notifier,
	})
	if err := eng.Run(ctx); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}
