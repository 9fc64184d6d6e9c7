package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/bellbridge/internal/app"
	"github.com/sebas/bellbridge/internal/config"
	"github.com/sebas/bellbridge/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to the TOML configuration file")
	flag.Parse()

	logger.Init(os.Stdout)

	slog.Info("Starting up, loading configuration", "path", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Server.LogLevel)

	gateway, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to create gateway", "error", err)
		os.Exit(1)
	}
	defer gateway.Close()

	if err := gateway.Start(); err != nil {
		slog.Error("Failed to start gateway", "error", err)
		os.Exit(1)
	}

	slog.Info("Gateway running",
		"sip_port", cfg.Server.SIPPort,
		"http_port", cfg.Server.HTTPPort,
		"doorbells", len(cfg.Doorbells),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig.String())
}
