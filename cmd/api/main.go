package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provindex/internal/bootstrap"
	"provindex/internal/config"
	"provindex/internal/infrastructure/logging"
	"provindex/internal/infrastructure/telemetry"
	"provindex/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	rotating, err := logging.Init(logging.Config{
		Service:    "provindex-api",
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		log.Fatalf("logging error: %v", err)
	}
	if rotating != nil {
		defer rotating.Close()
		go rotateOnHangup(rotating)
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "provindex-api",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
	})
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	services, err := bootstrap.New(cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer services.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if chainID, err := services.RPC.ChainID(startupCtx); err != nil {
		slog.Warn("rpc chain id unavailable", "err", err)
	} else {
		slog.Info("rpc connected", "chain_id", chainID)
	}
	startupCancel()

	server, err := httpapi.NewServer(httpapi.Dependencies{
		Pipeline:     services.Pipeline,
		Assets:       services.AssetReader,
		Participants: services.Participants,
		Reports:      services.Reports,
		RPC:          services.RPC,
		Metrics:      services.Metrics,
	}, httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("http server listening", "addr", cfg.HTTPAddr, "version", version)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server error", "err", err)
	}
}

func rotateOnHangup(writer *logging.RotatingWriter) {
	hangup := make(chan os.Signal, 1)
	signal.Notify(hangup, syscall.SIGHUP)
	for range hangup {
		if err := writer.Rotate(); err != nil {
			slog.Warn("log rotation failed", "err", err)
		}
	}
}
