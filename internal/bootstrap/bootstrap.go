// Package bootstrap wires the provenance pipeline and its backends from configuration. Both
// binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"provindex/internal/application"
	"provindex/internal/config"
	"provindex/internal/infrastructure/ethrpc"
	"provindex/internal/infrastructure/ledger"
	"provindex/internal/infrastructure/rediscache"
	"provindex/internal/infrastructure/storage"
	"provindex/internal/interfaces/httpapi"
)

type Services struct {
	RPC          *ethrpc.Client
	Participants *ledger.ParticipantRegistry
	Assets       *ledger.AssetRegistry
	AssetReader  *application.AssetReader
	Events       *application.EventSource
	Pipeline     *application.Pipeline
	Reports      application.ReportStore
	Metrics      *httpapi.Metrics

	closers []func() error
}

func New(cfg config.Config) (*Services, error) {
	metrics := httpapi.NewMetrics()

	rpcClient, err := ethrpc.NewClient(ethrpc.Config{
		URL:         cfg.RPCURL,
		Timeout:     cfg.RPCTimeout,
		MaxInFlight: cfg.RPCMaxInFlight,
		Observer:    metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	participants, err := ledger.NewParticipantRegistry(rpcClient, cfg.ParticipantRegistryAddress)
	if err != nil {
		return nil, fmt.Errorf("participant registry: %w", err)
	}
	assets, err := ledger.NewAssetRegistry(rpcClient, cfg.AssetRegistryAddress)
	if err != nil {
		return nil, fmt.Errorf("asset registry: %w", err)
	}
	assetReader, err := application.NewAssetReader(assets)
	if err != nil {
		return nil, err
	}
	events, err := application.NewEventSource(assets, application.EventSourceConfig{
		StartBlock: cfg.StartBlock,
		ChunkSize:  cfg.LogFetchChunkSize,
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := application.NewPipeline(participants, assetReader, events, metrics, application.PipelineConfig{
		Workers: cfg.PipelineWorkers,
	})
	if err != nil {
		return nil, err
	}

	base, err := storage.OpenReportStore(cfg.ReportDSN)
	if err != nil {
		return nil, fmt.Errorf("report store: %w", err)
	}
	services := &Services{
		RPC:          rpcClient,
		Participants: participants,
		Assets:       assets,
		AssetReader:  assetReader,
		Events:       events,
		Pipeline:     pipeline,
		Reports:      base,
		Metrics:      metrics,
		closers:      []func() error{base.Close},
	}
	cached, err := rediscache.New(base, rediscache.Config{
		Addr: cfg.RedisAddr,
		TTL:  cfg.ReportCacheTTL,
	})
	if err != nil {
		slog.Warn("redis cache disabled", "err", err)
	} else {
		services.Reports = cached
		services.closers = append(services.closers, cached.Close)
	}
	return services, nil
}

// StoreReport persists a finished run. Storage failures are logged, never returned: the
// transactions of a run are already delivered when its report is written.
func (s *Services) StoreReport(ctx context.Context, report application.RunReport) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Reports.StoreRun(ctx, report); err != nil {
		slog.Warn("run report not stored", "run_id", report.RunID, "err", err)
	}
}

func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
