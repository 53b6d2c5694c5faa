package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wrwrabbit/apk-customizer-bot/internal/adapter/controller"
	"github.com/wrwrabbit/apk-customizer-bot/internal/buildworker"
	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/logger"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	client, err := controller.NewFromConfig(cfg, log)
	if err != nil {
		log.Error("failed to create controller client", slog.Any("error", err))
		os.Exit(1)
	}
	workspace, err := buildworker.NewWorkspace(cfg, log)
	if err != nil {
		log.Error("failed to prepare workspace", slog.Any("error", err))
		os.Exit(1)
	}
	daemon := buildworker.NewDaemon(client, workspace, buildworker.Options{
		CheckInterval: cfg.CheckInterval,
		SourcesOnly:   cfg.AllowSourcesOnly,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT drains, SIGTERM stops once no report is in flight.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		for sig := range signals {
			if sig == syscall.SIGINT {
				log.Info("SIGINT received, finishing current builds")
				daemon.Drain()
				continue
			}
			log.Info("SIGTERM received, stopping")
			cancel()
		}
	}()

	if err := daemon.Run(ctx); err != nil {
		log.Error("build worker failed", slog.Any("error", err))
		os.Exit(1)
	}
}
