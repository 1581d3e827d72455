package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"provindex/internal/application"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository stores pipeline run reports in MySQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(36) NOT NULL,
			started_at_ms BIGINT NOT NULL,
			finished_at_ms BIGINT NOT NULL,
			filter_json TEXT NOT NULL,
			participants INT UNSIGNED NOT NULL DEFAULT 0,
			event_count INT UNSIGNED NOT NULL DEFAULT 0,
			delivered_count INT UNSIGNED NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id),
			KEY runs_started_idx (started_at_ms)
		)`,
		`CREATE TABLE IF NOT EXISTS dropped_events (
			run_id VARCHAR(36) NOT NULL,
			position INT UNSIGNED NOT NULL,
			asset_id BIGINT UNSIGNED NOT NULL,
			tx_hash VARCHAR(66) NOT NULL,
			block_number BIGINT UNSIGNED NOT NULL,
			log_index BIGINT UNSIGNED NOT NULL,
			stage VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			PRIMARY KEY (run_id, position),
			KEY dropped_asset_idx (asset_id)
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
	ctx, span := startDBSpan(ctx, "mysql.StoreRun",
		attribute.String("run.id", report.RunID),
		attribute.Int("dropped.count", len(report.Dropped)),
	)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.storeRun(ctx, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Repository) storeRun(ctx context.Context, report application.RunReport) error {
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
		ON DUPLICATE KEY UPDATE finished_at_ms = VALUES(finished_at_ms), delivered_count = VALUES(delivered_count)`,
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
		stmt, err := tx.PrepareContext(ctx, `INSERT IGNORE INTO dropped_events (run_id, position, asset_id, tx_hash, block_number, log_index, stage, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		for i, dropped := range report.Dropped {
			if _, err := stmt.ExecContext(ctx, report.RunID, i, dropped.AssetID, dropped.TxHash, dropped.BlockNumber, dropped.LogIndex, dropped.Stage, dropped.Reason); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (r *Repository) ListRuns(ctx context.Context, filter application.RunQueryFilter) ([]application.RunReport, error) {
	ctx, span := startDBSpan(ctx, "mysql.ListRuns", attribute.Int("limit", filter.Limit))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reports, err := r.listRuns(ctx, normalizeRunLimit(filter.Limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return reports, nil
}

func (r *Repository) listRuns(ctx context.Context, limit int) ([]application.RunReport, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, started_at_ms, finished_at_ms, filter_json, participants, event_count, delivered_count
		FROM runs ORDER BY started_at_ms DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]application.RunReport, 0, limit)
	positions := make(map[string]int)
	for rows.Next() {
		var (
			report     application.RunReport
			startedAt  int64
			finishedAt int64
			filter     string
		)
		if err := rows.Scan(&report.RunID, &startedAt, &finishedAt, &filter, &report.Participants, &report.EventCount, &report.DeliveredCount); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(filter), &report.Filter); err != nil {
			return nil, err
		}
		report.StartedAt = time.UnixMilli(startedAt).UTC()
		report.FinishedAt = time.UnixMilli(finishedAt).UTC()
		report.Dropped = []application.DroppedEvent{}
		positions[report.RunID] = len(reports)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return reports, nil
	}

	args := make([]any, 0, len(reports))
	for _, report := range reports {
		args = append(args, report.RunID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	dropped, err := r.db.QueryContext(ctx, `SELECT run_id, asset_id, tx_hash, block_number, log_index, stage, reason
		FROM dropped_events WHERE run_id IN (`+placeholders+`) ORDER BY run_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer dropped.Close()
	for dropped.Next() {
		var (
			runID string
			event application.DroppedEvent
		)
		if err := dropped.Scan(&runID, &event.AssetID, &event.TxHash, &event.BlockNumber, &event.LogIndex, &event.Stage, &event.Reason); err != nil {
			return nil, err
		}
		if i, ok := positions[runID]; ok {
			reports[i].Dropped = append(reports[i].Dropped, event)
		}
	}
	return reports, dropped.Err()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func normalizeRunLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("provindex/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
