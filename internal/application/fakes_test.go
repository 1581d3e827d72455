package application

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"provindex/internal/domain"
)

type fakeLedger struct {
	mu sync.Mutex

	participants    []domain.ParticipantRecord
	participantsErr error

	assets      map[uint64]domain.Asset
	attributes  map[uint64][]domain.AttributeRecord
	composition map[uint64][]domain.CompositionEdge
	assetErr    map[uint64]error

	latest     uint64
	latestErr  error
	events     []domain.TransferEvent
	eventsErr  error
	queries    []TransferQuery
	receipts   map[string]domain.Receipt
	receiptErr map[string]error
	blocks     map[uint64]domain.BlockHeader

	assetDelay  time.Duration
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		assets:      make(map[uint64]domain.Asset),
		attributes:  make(map[uint64][]domain.AttributeRecord),
		composition: make(map[uint64][]domain.CompositionEdge),
		assetErr:    make(map[uint64]error),
		receipts:    make(map[string]domain.Receipt),
		receiptErr:  make(map[string]error),
		blocks:      make(map[uint64]domain.BlockHeader),
	}
}

// addTransfer registers a transfer together with the receipt and block it needs to enrich.
func (f *fakeLedger) addTransfer(event domain.TransferEvent, gasUsed uint64, gasPrice int64, at time.Time) {
	f.events = append(f.events, event)
	f.receipts[event.TxHash] = domain.Receipt{
		TxHash:            event.TxHash,
		BlockNumber:       event.BlockNumber,
		TxIndex:           event.TxIndex,
		Status:            1,
		GasUsed:           gasUsed,
		EffectiveGasPrice: big.NewInt(gasPrice),
	}
	f.blocks[event.BlockNumber] = domain.BlockHeader{Number: event.BlockNumber, Timestamp: at}
	if event.BlockNumber > f.latest {
		f.latest = event.BlockNumber
	}
}

func (f *fakeLedger) Participants(ctx context.Context) ([]domain.ParticipantRecord, error) {
	if f.participantsErr != nil {
		return nil, f.participantsErr
	}
	return f.participants, nil
}

func (f *fakeLedger) Asset(ctx context.Context, id uint64) (domain.Asset, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if current <= seen || f.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.assetDelay > 0 {
		time.Sleep(f.assetDelay)
	}
	if err := f.assetErr[id]; err != nil {
		return domain.Asset{}, err
	}
	asset, ok := f.assets[id]
	if !ok {
		return domain.Asset{}, ErrAssetNotFound
	}
	return asset, nil
}

func (f *fakeLedger) AttributeNames(ctx context.Context, id uint64) ([]string, error) {
	var names []string
	for _, attribute := range f.attributes[id] {
		names = append(names, attribute.Name)
	}
	return names, nil
}

func (f *fakeLedger) Attribute(ctx context.Context, id uint64, name string) (domain.AttributeRecord, error) {
	for _, attribute := range f.attributes[id] {
		if attribute.Name == name {
			return attribute, nil
		}
	}
	return domain.AttributeRecord{}, errors.New("attribute missing")
}

func (f *fakeLedger) Composition(ctx context.Context, id uint64) ([]domain.CompositionEdge, error) {
	return f.composition[id], nil
}

func (f *fakeLedger) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, f.latestErr
}

func (f *fakeLedger) TransferEvents(ctx context.Context, query TransferQuery) ([]domain.TransferEvent, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	var matched []domain.TransferEvent
	for _, event := range f.events {
		if event.BlockNumber < query.FromBlock || event.BlockNumber > query.ToBlock {
			continue
		}
		if query.AssetID != nil && event.AssetID != *query.AssetID {
			continue
		}
		matched = append(matched, event)
	}
	return matched, nil
}

func (f *fakeLedger) Receipt(ctx context.Context, txHash string) (domain.Receipt, error) {
	if err := f.receiptErr[txHash]; err != nil {
		return domain.Receipt{}, err
	}
	receipt, ok := f.receipts[txHash]
	if !ok {
		return domain.Receipt{}, ErrReceiptNotFound
	}
	return receipt, nil
}

func (f *fakeLedger) Block(ctx context.Context, number uint64) (domain.BlockHeader, error) {
	block, ok := f.blocks[number]
	if !ok {
		return domain.BlockHeader{}, ErrBlockNotFound
	}
	return block, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	dropped  []string
	finished []RunReport
	failed   []error
}

func (o *recordingObserver) OnEventDropped(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, stage)
}

func (o *recordingObserver) OnRunFinished(report RunReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, report)
}

func (o *recordingObserver) OnRunFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func uint64Ptr(value uint64) *uint64 {
	return &value
}
