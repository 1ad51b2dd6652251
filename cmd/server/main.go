package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/databender/leadengine/internal/api"
	"github.com/databender/leadengine/internal/app"
	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/pkg/logger"
)

func main() {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.LoadFromEnv(configPath())
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

	// The memory queue never leaves this process, so the server drains it.
	if a.InProcessQueue() {
		consumer := a.Consumer()
		consumer.Start(ctx)
		defer consumer.Stop()
		logger.Info("consuming background tasks in-process")
	}

	server := api.NewServer(cfg.Server, a.APIDeps())

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}
	cancel()
	logger.Info("server stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
