package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"provindex/internal/application"

	_ "modernc.org/sqlite"
)

// Repository stores pipeline run reports in a local SQLite file.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at_ms INTEGER NOT NULL,
			finished_at_ms INTEGER NOT NULL,
			filter_json TEXT NOT NULL,
			participants INTEGER NOT NULL DEFAULT 0,
			event_count INTEGER NOT NULL DEFAULT 0,
			delivered_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS runs_started_idx ON runs (started_at_ms)`,
		`CREATE TABLE IF NOT EXISTS dropped_events (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			asset_id INTEGER NOT NULL,
			tx_hash TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			log_index INTEGER NOT NULL,
			stage TEXT NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) StoreRun(ctx context.Context, report application.RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter, err := json.Marshal(report.Filter)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (run_id, started_at_ms, finished_at_ms, filter_json, participants, event_count, delivered_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET finished_at_ms = excluded.finished_at_ms, delivered_count = excluded.delivered_count`,
		report.RunID,
		report.StartedAt.UnixMilli(),
		report.FinishedAt.UnixMilli(),
		string(filter),
		report.Participants,
		report.EventCount,
		report.DeliveredCount,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(report.Dropped) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO dropped_events (run_id, position, asset_id, tx_hash, block_number, log_index, stage, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, position) DO NOTHING`)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		for i, dropped := range report.Dropped {
			if _, err := stmt.ExecContext(ctx, report.RunID, i, int64(dropped.AssetID), dropped.TxHash, int64(dropped.BlockNumber), int64(dropped.LogIndex), dropped.Stage, dropped.Reason); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (r *Repository) ListRuns(ctx context.Context, filter application.RunQueryFilter) ([]application.RunReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, started_at_ms, finished_at_ms, filter_json, participants, event_count, delivered_count
		FROM runs ORDER BY started_at_ms DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	reports := make([]application.RunReport, 0, limit)
	for rows.Next() {
		var (
			report     application.RunReport
			startedAt  int64
			finishedAt int64
			filterJSON string
		)
		if err := rows.Scan(&report.RunID, &startedAt, &finishedAt, &filterJSON, &report.Participants, &report.EventCount, &report.DeliveredCount); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(filterJSON), &report.Filter); err != nil {
			_ = rows.Close()
			return nil, err
		}
		report.StartedAt = time.UnixMilli(startedAt).UTC()
		report.FinishedAt = time.UnixMilli(finishedAt).UTC()
		reports = append(reports, report)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One connection: the dropped-event reads run after the runs cursor is closed.
	for i := range reports {
		dropped, err := r.droppedEvents(ctx, reports[i].RunID)
		if err != nil {
			return nil, err
		}
		reports[i].Dropped = dropped
	}
	return reports, nil
}

func (r *Repository) droppedEvents(ctx context.Context, runID string) ([]application.DroppedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT asset_id, tx_hash, block_number, log_index, stage, reason
		FROM dropped_events WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []application.DroppedEvent{}
	for rows.Next() {
		var (
			event       application.DroppedEvent
			assetID     int64
			blockNumber int64
			logIndex    int64
		)
		if err := rows.Scan(&assetID, &event.TxHash, &blockNumber, &logIndex, &event.Stage, &event.Reason); err != nil {
			return nil, err
		}
		event.AssetID = uint64(assetID)
		event.BlockNumber = uint64(blockNumber)
		event.LogIndex = uint64(logIndex)
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
