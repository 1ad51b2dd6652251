package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/databender/leadengine/internal/app"
	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/pkg/logger"
)

func main() {
	runOnce := flag.Bool("once", false, "run today's sequence batch and summary, then exit")
	flag.Parse()

	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	scheduler := a.Scheduler()
	if *runOnce {
		if err := scheduler.RunDaily(ctx, time.Now()); err != nil {
			logger.Error("daily run failed", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	if a.InProcessQueue() {
		logger.Warn("memory queue configured: tasks published by the server will not reach this worker")
	}
	consumer := a.Consumer()
	consumer.Start(ctx)
	scheduler.Start(ctx)
	logger.Info("worker started", "process_hour_utc", cfg.Sequence.ProcessHourUTC, "queue", cfg.Queue.Type)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	logger.Info("shutting down worker")
	cancel()
	scheduler.Stop()
	consumer.Stop()
	logger.Info("worker stopped")
}
