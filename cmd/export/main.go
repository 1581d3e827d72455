package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"provindex/internal/application"
	"provindex/internal/bootstrap"
	"provindex/internal/config"
	"provindex/internal/domain"
	"provindex/internal/infrastructure/kafka"
	"provindex/internal/infrastructure/logging"
	"provindex/internal/infrastructure/telemetry"
)

var version = "dev"

type exportOutput struct {
	RunID        string                       `json:"run_id"`
	Transactions []domain.DetailedTransaction `json:"transactions"`
	Dropped      []application.DroppedEvent   `json:"dropped"`
}

func main() {
	var (
		assetID = flag.Uint64("asset", 0, "only transfers of this asset id (0 = all)")
		address = flag.String("address", "", "only transfers sent or received by this address")
		from    = flag.Uint64("from", 0, "first block (default START_BLOCK)")
		to      = flag.Uint64("to", 0, "last block (default latest)")
		publish = flag.Bool("publish", false, "publish the run to Kafka")
	)
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if _, err := logging.Init(logging.Config{
		Service: "provindex-export",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  os.Stderr,
	}); err != nil {
		log.Fatalf("logging error: %v", err)
	}

	shutdownTracing, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "provindex-export",
		ServiceVersion: version,
		Endpoint:       cfg.OtelEndpoint,
	})
	if err != nil {
		slog.Warn("tracing init error", "err", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	services, err := bootstrap.New(cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer services.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	filter := application.TransferFilter{Address: strings.ToLower(strings.TrimSpace(*address))}
	if *assetID != 0 {
		filter.AssetID = assetID
	}
	if *from != 0 {
		filter.FromBlock = from
	}
	if *to != 0 {
		filter.ToBlock = to
	}

	result, err := services.Pipeline.Run(ctx, filter)
	if err != nil {
		slog.Error("provenance run failed", "err", err)
		os.Exit(1)
	}
	services.StoreReport(ctx, result.Report)

	if *publish {
		if err := publishResult(ctx, cfg, result); err != nil {
			slog.Error("publish failed", "run_id", result.Report.RunID, "err", err)
			os.Exit(1)
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(exportOutput{
		RunID:        result.Report.RunID,
		Transactions: result.Transactions,
		Dropped:      result.Report.Dropped,
	}); err != nil {
		slog.Error("write output failed", "err", err)
		os.Exit(1)
	}
}

func publishResult(ctx context.Context, cfg config.Config, result application.Result) error {
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:     cfg.KafkaBrokers,
		TopicPrefix: cfg.KafkaTopicPrefix,
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	if err := publisher.Publish(ctx, result); err != nil {
		return err
	}
	slog.Info("run published",
		"run_id", result.Report.RunID,
		"transactions_topic", publisher.TransactionsTopic(),
		"runs_topic", publisher.RunsTopic(),
		"transactions", len(result.Transactions),
	)
	return nil
}
