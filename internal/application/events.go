package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"provindex/internal/domain"

	"golang.org/x/sync/errgroup"
)

var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrBlockNotFound   = errors.New("block not found")
)

type TransferSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	TransferEvents(ctx context.Context, query TransferQuery) ([]domain.TransferEvent, error)
	Receipt(ctx context.Context, txHash string) (domain.Receipt, error)
	Block(ctx context.Context, number uint64) (domain.BlockHeader, error)
}

type EventSourceConfig struct {
	StartBlock uint64
	ChunkSize  uint64
}

// EventSource reads transfer events and their execution metadata from the ledger.
type EventSource struct {
	source TransferSource
	cfg    EventSourceConfig
}

func NewEventSource(source TransferSource, cfg EventSourceConfig) (*EventSource, error) {
	if source == nil {
		return nil, errors.New("transfer source is required")
	}
	return &EventSource{source: source, cfg: cfg}, nil
}

// Events returns the transfer events matching filter in ledger order: block number, then
// transaction index, then log index.
func (s *EventSource) Events(ctx context.Context, filter TransferFilter) ([]domain.TransferEvent, error) {
	fromBlock := s.cfg.StartBlock
	if filter.FromBlock != nil {
		fromBlock = *filter.FromBlock
	}
	var toBlock uint64
	if filter.ToBlock != nil {
		toBlock = *filter.ToBlock
	} else {
		latest, err := s.source.LatestBlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest block: %w", err)
		}
		toBlock = latest
	}
	if fromBlock > toBlock {
		return []domain.TransferEvent{}, nil
	}

	var events []domain.TransferEvent
	for _, span := range splitRange(fromBlock, toBlock, s.cfg.ChunkSize) {
		chunk, err := s.source.TransferEvents(ctx, TransferQuery{
			AssetID:   filter.AssetID,
			FromBlock: span[0],
			ToBlock:   span[1],
		})
		if err != nil {
			return nil, fmt.Errorf("transfer events %d-%d: %w", span[0], span[1], err)
		}
		events = append(events, chunk...)
	}

	if address := strings.ToLower(strings.TrimSpace(filter.Address)); address != "" {
		matched := events[:0]
		for _, event := range events {
			if strings.EqualFold(event.From, address) || strings.EqualFold(event.To, address) {
				matched = append(matched, event)
			}
		}
		events = matched
	}

	sort.SliceStable(events, func(a, b int) bool {
		return events[a].Before(events[b])
	})
	if events == nil {
		events = []domain.TransferEvent{}
	}
	return events, nil
}

// Execution resolves the receipt and the containing block of event concurrently.
func (s *EventSource) Execution(ctx context.Context, event domain.TransferEvent) (domain.Execution, error) {
	var (
		receipt domain.Receipt
		block   domain.BlockHeader
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.source.Receipt(gctx, event.TxHash)
		if err != nil {
			return fmt.Errorf("receipt %s: %w", event.TxHash, err)
		}
		receipt = r
		return nil
	})
	g.Go(func() error {
		b, err := s.source.Block(gctx, event.BlockNumber)
		if err != nil {
			return fmt.Errorf("block %d: %w", event.BlockNumber, err)
		}
		block = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Execution{}, err
	}
	return domain.Execution{
		GasUsed:   receipt.GasUsed,
		GasPrice:  receipt.EffectiveGasPrice,
		Timestamp: block.Timestamp,
	}, nil
}

// splitRange cuts [from, to] into inclusive spans of at most size blocks. A zero size
// yields a single span.
func splitRange(from, to, size uint64) [][2]uint64 {
	if size == 0 || to-from < size {
		return [][2]uint64{{from, to}}
	}
	var spans [][2]uint64
	for start := from; start <= to; {
		end := start + size - 1
		if end > to || end < start {
			end = to
		}
		spans = append(spans, [2]uint64{start, end})
		if end == to {
			break
		}
		start = end + 1
	}
	return spans
}
