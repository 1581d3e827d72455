package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"provindex/internal/application"
	"provindex/internal/domain"
	"provindex/internal/infrastructure/ethrpc"

	"github.com/ethereum/go-ethereum/common"
)

const transferEventName = "ProductTransferred"

// TransferTopic is the topic0 of ProductTransferred logs.
func TransferTopic() string {
	return strings.ToLower(assetABI.Events[transferEventName].ID.Hex())
}

func (r *AssetRegistry) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return r.node.LatestBlockNumber(ctx)
}

// TransferEvents fetches and decodes ProductTransferred logs in the query range. Removed
// logs are skipped; a log that cannot be decoded fails the whole query.
func (r *AssetRegistry) TransferEvents(ctx context.Context, query application.TransferQuery) ([]domain.TransferEvent, error) {
	topics := [][]string{{TransferTopic()}}
	if query.AssetID != nil {
		topics = append(topics, []string{common.BigToHash(new(big.Int).SetUint64(*query.AssetID)).Hex()})
	}
	logs, err := r.node.FetchLogs(ctx, ethrpc.LogQuery{
		Address:   r.address,
		Topics:    topics,
		FromBlock: query.FromBlock,
		ToBlock:   query.ToBlock,
	})
	if err != nil {
		return nil, err
	}

	events := make([]domain.TransferEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := DecodeTransfer(log)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// DecodeTransfer decodes a ProductTransferred log.
func DecodeTransfer(log ethrpc.Log) (domain.TransferEvent, error) {
	if len(log.Topics) != 4 || !strings.EqualFold(log.Topics[0], TransferTopic()) {
		return domain.TransferEvent{}, fmt.Errorf("log %s/%d is not a %s event", log.TxHash, log.LogIndex, transferEventName)
	}
	assetID, err := toUint64(common.HexToHash(log.Topics[1]).Big())
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("log %s/%d product id: %w", log.TxHash, log.LogIndex, err)
	}
	values, err := assetABI.Unpack(transferEventName, log.Data)
	if err != nil {
		return domain.TransferEvent{}, fmt.Errorf("log %s/%d data: %w", log.TxHash, log.LogIndex, err)
	}
	if len(values) != 1 {
		return domain.TransferEvent{}, fmt.Errorf("log %s/%d: unexpected data fields %d", log.TxHash, log.LogIndex, len(values))
	}
	quantity, ok := values[0].(*big.Int)
	if !ok {
		return domain.TransferEvent{}, fmt.Errorf("log %s/%d: unexpected quantity encoding", log.TxHash, log.LogIndex)
	}
	return domain.TransferEvent{
		AssetID:     assetID,
		From:        addressHex(common.HexToAddress(log.Topics[2])),
		To:          addressHex(common.HexToAddress(log.Topics[3])),
		Quantity:    quantity,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.LogIndex,
	}, nil
}

func (r *AssetRegistry) Receipt(ctx context.Context, txHash string) (domain.Receipt, error) {
	receipt, ok, err := r.node.TransactionReceipt(ctx, txHash)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !ok {
		return domain.Receipt{}, fmt.Errorf("%w: %s", application.ErrReceiptNotFound, txHash)
	}
	return receipt, nil
}

func (r *AssetRegistry) Block(ctx context.Context, number uint64) (domain.BlockHeader, error) {
	block, ok, err := r.node.BlockByNumber(ctx, number)
	if err != nil {
		return domain.BlockHeader{}, err
	}
	if !ok {
		return domain.BlockHeader{}, fmt.Errorf("%w: %d", application.ErrBlockNotFound, number)
	}
	return block, nil
}
