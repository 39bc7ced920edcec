package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luciancaetano/kephasrelay/internal/config"
	"github.com/luciancaetano/kephasrelay/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults: auto-create relay on :8080)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	policy := cfg.ChannelPolicy()
	logger.Info("starting relay",
		"config", *configPath,
		"addr", cfg.Server.Addr,
		"auto_create", policy.AutoCreate,
		"channels", policy.Channels,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := ws.New(cfg.RelayConfig(), logger)
	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start relay", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down relay")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}
