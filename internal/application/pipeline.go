package application

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"provindex/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrParticipantsUnavailable = errors.New("participant registry unavailable")
	ErrEventsUnavailable       = errors.New("transfer events unavailable")
)

type PipelineObserver interface {
	OnEventDropped(stage string)
	OnRunFinished(report RunReport)
	OnRunFailed(err error)
}

type PipelineConfig struct {
	Workers int
}

// Pipeline reconstructs display-ready transactions from raw transfer events.
type Pipeline struct {
	participants ParticipantSource
	assets       *AssetReader
	events       *EventSource
	observer     PipelineObserver
	cfg          PipelineConfig
	now          func() time.Time
}

func NewPipeline(participants ParticipantSource, assets *AssetReader, events *EventSource, observer PipelineObserver, cfg PipelineConfig) (*Pipeline, error) {
	if participants == nil || assets == nil || events == nil {
		return nil, errors.New("pipeline dependencies must not be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	return &Pipeline{
		participants: participants,
		assets:       assets,
		events:       events,
		observer:     observer,
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

// Run loads the participant snapshot and the transfer events for filter, then enriches every
// event. A registry or event query failure fails the run; a failure while enriching a single
// event only drops that event.
func (p *Pipeline) Run(ctx context.Context, filter TransferFilter) (Result, error) {
	ctx, span := otel.Tracer("provindex/pipeline").Start(ctx, "pipeline.run")
	defer span.End()

	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: p.now().UTC(),
		Filter:    filter,
	}
	span.SetAttributes(attribute.String("run.id", report.RunID))

	index, err := LoadParticipantIndex(ctx, p.participants)
	if err != nil {
		return Result{}, p.fail(span, fmt.Errorf("%w: %w", ErrParticipantsUnavailable, err))
	}
	report.Participants = index.Len()

	events, err := p.events.Events(ctx, filter)
	if err != nil {
		return Result{}, p.fail(span, fmt.Errorf("%w: %w", ErrEventsUnavailable, err))
	}
	report.EventCount = len(events)

	transactions, dropped, err := p.Enrich(ctx, report.RunID, index, events)
	if err != nil {
		return Result{}, p.fail(span, err)
	}
	report.DeliveredCount = len(transactions)
	report.Dropped = dropped
	report.FinishedAt = p.now().UTC()

	span.SetAttributes(
		attribute.Int("events.total", report.EventCount),
		attribute.Int("events.dropped", len(dropped)),
	)
	slog.Info("provenance run finished",
		"run_id", report.RunID,
		"participants", report.Participants,
		"events", report.EventCount,
		"delivered", report.DeliveredCount,
		"dropped", len(dropped),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	if p.observer != nil {
		p.observer.OnRunFinished(report)
	}
	return Result{Report: report, Transactions: transactions}, nil
}

func (p *Pipeline) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if p.observer != nil {
		p.observer.OnRunFailed(err)
	}
	return err
}

type enrichment struct {
	tx    domain.DetailedTransaction
	stage string
	err   error
}

// Enrich resolves every event against index and the ledger, at most cfg.Workers events at a
// time. Failed events are logged and returned as dropped; the transactions come back in
// reverse ledger order. The only error is the context's.
func (p *Pipeline) Enrich(ctx context.Context, runID string, index *ParticipantIndex, events []domain.TransferEvent) ([]domain.DetailedTransaction, []DroppedEvent, error) {
	slots := make([]enrichment, len(events))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, event := range events {
		g.Go(func() error {
			slots[i] = p.enrichEvent(ctx, index, event)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	transactions := make([]domain.DetailedTransaction, 0, len(events))
	dropped := make([]DroppedEvent, 0)
	for i, slot := range slots {
		if slot.err == nil {
			transactions = append(transactions, slot.tx)
			continue
		}
		event := events[i]
		slog.Warn("dropping transfer event",
			"run_id", runID,
			"asset_id", event.AssetID,
			"tx_hash", event.TxHash,
			"block_number", event.BlockNumber,
			"stage", slot.stage,
			"err", slot.err,
		)
		if p.observer != nil {
			p.observer.OnEventDropped(slot.stage)
		}
		dropped = append(dropped, DroppedEvent{
			AssetID:     event.AssetID,
			TxHash:      event.TxHash,
			BlockNumber: event.BlockNumber,
			LogIndex:    event.LogIndex,
			Stage:       slot.stage,
			Reason:      slot.err.Error(),
		})
	}

	slices.SortStableFunc(transactions, compareLedgerOrder)
	slices.Reverse(transactions)
	return transactions, dropped, nil
}

func (p *Pipeline) enrichEvent(ctx context.Context, index *ParticipantIndex, event domain.TransferEvent) enrichment {
	ctx, span := otel.Tracer("provindex/pipeline").Start(ctx, "pipeline.enrich_event")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("asset.id", int64(event.AssetID)),
		attribute.Int64("block.number", int64(event.BlockNumber)),
		attribute.String("tx.hash", event.TxHash),
	)

	var (
		details   domain.AssetDetails
		execution domain.Execution
		stage     string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := p.assets.Read(gctx, event.AssetID)
		if err != nil {
			return stageError{stage: StageAsset, err: err}
		}
		details = d
		return nil
	})
	g.Go(func() error {
		e, err := p.events.Execution(gctx, event)
		if err != nil {
			return stageError{stage: StageExecution, err: err}
		}
		execution = e
		return nil
	})
	if err := g.Wait(); err != nil {
		var staged stageError
		if errors.As(err, &staged) {
			stage, err = staged.stage, staged.err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return enrichment{stage: stage, err: err}
	}

	from := index.Resolve(event.From)
	to := index.Resolve(event.To)
	return enrichment{tx: assemble(event, details, execution, from, to)}
}

type stageError struct {
	stage string
	err   error
}

func (e stageError) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e stageError) Unwrap() error {
	return e.err
}

func assemble(event domain.TransferEvent, details domain.AssetDetails, execution domain.Execution, from, to domain.Participant) domain.DetailedTransaction {
	quantity := event.Quantity
	if quantity == nil {
		quantity = new(big.Int)
	}
	gasPrice := "0"
	if execution.GasPrice != nil {
		gasPrice = execution.GasPrice.String()
	}
	return domain.DetailedTransaction{
		ID:              event.TxHash,
		AssetID:         event.AssetID,
		BlockNumber:     event.BlockNumber,
		TxIndex:         event.TxIndex,
		LogIndex:        event.LogIndex,
		GasUsed:         execution.GasUsed,
		GasPrice:        gasPrice,
		Timestamp:       execution.Timestamp,
		Product:         details.Asset.Name,
		Description:     details.Asset.Description,
		Quantity:        quantity.String(),
		QuantityKg:      Kilograms(quantity),
		Attributes:      details.Attributes,
		Composition:     details.Composition,
		From:            from,
		To:              to,
		FromCoordinates: ParseCoordinates(locationOrOrigin(from.Location)),
		ToCoordinates:   ParseCoordinates(locationOrOrigin(to.Location)),
	}
}

// Kilograms converts a quantity in smallest ledger units (UnitsPerKilogram per kg) to
// kilograms without rounding.
func Kilograms(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -3)
}

func locationOrOrigin(location string) string {
	if location == "" {
		return domain.UnknownLocation
	}
	return location
}

func compareLedgerOrder(a, b domain.DetailedTransaction) int {
	if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TxIndex, b.TxIndex); c != 0 {
		return c
	}
	return cmp.Compare(a.LogIndex, b.LogIndex)
}
