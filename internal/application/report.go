package application

import (
	"context"
	"time"

	"provindex/internal/domain"
)

// Drop stages.
const (
	StageAsset     = "asset"
	StageExecution = "execution"
)

// DroppedEvent describes an event whose enrichment failed and was left out of a run.
type DroppedEvent struct {
	AssetID     uint64 `json:"asset_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Filter         TransferFilter `json:"filter"`
	Participants   int            `json:"participants"`
	EventCount     int            `json:"event_count"`
	DeliveredCount int            `json:"delivered_count"`
	Dropped        []DroppedEvent `json:"dropped"`
}

// Result is the output of a pipeline run: the enriched transactions, most recent first,
// and the report describing what was dropped.
type Result struct {
	Report       RunReport
	Transactions []domain.DetailedTransaction
}

type ReportStore interface {
	StoreRun(ctx context.Context, report RunReport) error
	ListRuns(ctx context.Context, filter RunQueryFilter) ([]RunReport, error)
	Ping(ctx context.Context) error
}
