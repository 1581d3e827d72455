package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"provindex/internal/application"
	"provindex/internal/domain"
	"provindex/internal/infrastructure/ethrpc"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	registryAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	producerAddr = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	factoryAddr  = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

type callHandler func(args []any) ([]any, error)

// fakeNode answers contract calls by ABI-decoding the input and ABI-encoding the handler's
// return values.
type fakeNode struct {
	contract abi.ABI
	handlers map[string]callHandler

	logs     []ethrpc.Log
	queries  []ethrpc.LogQuery
	receipts map[string]domain.Receipt
	blocks   map[uint64]domain.BlockHeader
}

func newFakeNode(contract abi.ABI) *fakeNode {
	return &fakeNode{
		contract: contract,
		handlers: make(map[string]callHandler),
		receipts: make(map[string]domain.Receipt),
		blocks:   make(map[uint64]domain.BlockHeader),
	}
}

func (n *fakeNode) Call(ctx context.Context, to string, data []byte) ([]byte, error) {
	method, err := n.contract.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	handler, ok := n.handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("no handler for %s", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	values, err := handler(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func (n *fakeNode) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return 100, nil
}

func (n *fakeNode) FetchLogs(ctx context.Context, query ethrpc.LogQuery) ([]ethrpc.Log, error) {
	n.queries = append(n.queries, query)
	return n.logs, nil
}

func (n *fakeNode) TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error) {
	receipt, ok := n.receipts[txHash]
	return receipt, ok, nil
}

func (n *fakeNode) BlockByNumber(ctx context.Context, number uint64) (domain.BlockHeader, bool, error) {
	block, ok := n.blocks[number]
	return block, ok, nil
}

func TestParticipantRegistryParticipants(t *testing.T) {
	node := newFakeNode(participantABI)
	node.handlers["getAllParticipants"] = func([]any) ([]any, error) {
		return []any{[]participantTuple{
			{Addr: common.HexToAddress(producerAddr), Name: "Olivar Sur", Role: "producer", Location: "37.88,-4.77", Active: true},
			{Addr: common.HexToAddress(factoryAddr), Name: "Almazara", Role: "factory", Location: "41.6,-0.8", Active: false},
		}}, nil
	}
	registry, err := NewParticipantRegistry(node, registryAddr)
	require.NoError(t, err)

	records, err := registry.Participants(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.ParticipantRecord{
		Address:  producerAddr,
		Name:     "Olivar Sur",
		Role:     "producer",
		Location: "37.88,-4.77",
		Active:   true,
	}, records[0])
	assert.Equal(t, "factory", records[1].Role)
	assert.False(t, records[1].Active)
}

func TestParticipantRegistryParticipant(t *testing.T) {
	node := newFakeNode(participantABI)
	node.handlers["getParticipant"] = func(args []any) ([]any, error) {
		account := args[0].(common.Address)
		if account != common.HexToAddress(producerAddr) {
			return []any{participantTuple{}}, nil
		}
		return []any{participantTuple{Addr: account, Name: "Olivar Sur", Role: "producer", Location: "1,2", Active: true}}, nil
	}
	registry, err := NewParticipantRegistry(node, registryAddr)
	require.NoError(t, err)

	record, ok, err := registry.Participant(context.Background(), producerAddr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Olivar Sur", record.Name)

	_, ok, err = registry.Participant(context.Background(), factoryAddr)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = registry.Participant(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestNewRegistriesValidateAddress(t *testing.T) {
	_, err := NewParticipantRegistry(newFakeNode(participantABI), "0x123")
	assert.Error(t, err)
	_, err = NewAssetRegistry(newFakeNode(assetABI), "")
	assert.Error(t, err)
	_, err = NewAssetRegistry(nil, registryAddr)
	assert.Error(t, err)
}

func TestAssetRegistryAsset(t *testing.T) {
	node := newFakeNode(assetABI)
	node.handlers["getProduct"] = func(args []any) ([]any, error) {
		id := args[0].(*big.Int)
		switch id.Uint64() {
		case 2:
			return []any{productTuple{
				ID:            big.NewInt(2),
				Name:          "Extra Virgin",
				Description:   "Cold pressed",
				Creator:       common.HexToAddress(factoryAddr),
				Quantity:      big.NewInt(5000),
				Timestamp:     big.NewInt(1700000000),
				IsProcessed:   true,
				ParentProduct: big.NewInt(1),
			}}, nil
		case 3:
			return nil, &ethrpc.RPCError{Code: 3, Message: "execution reverted: product does not exist"}
		default:
			return []any{productTuple{
				ID: new(big.Int), Quantity: new(big.Int), Timestamp: new(big.Int), ParentProduct: new(big.Int),
			}}, nil
		}
	}
	registry, err := NewAssetRegistry(node, registryAddr)
	require.NoError(t, err)

	asset, err := registry.Asset(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), asset.ID)
	assert.Equal(t, "Extra Virgin", asset.Name)
	assert.Equal(t, "Cold pressed", asset.Description)
	assert.Equal(t, factoryAddr, asset.Creator)
	assert.Equal(t, 0, asset.Quantity.Cmp(big.NewInt(5000)))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), asset.CreatedAt)
	assert.True(t, asset.Processed)
	require.NotNil(t, asset.ParentID)
	assert.Equal(t, uint64(1), *asset.ParentID)

	_, err = registry.Asset(context.Background(), 3)
	assert.True(t, errors.Is(err, application.ErrAssetNotFound))

	_, err = registry.Asset(context.Background(), 4)
	assert.True(t, errors.Is(err, application.ErrAssetNotFound))
}

func TestAssetRegistryAttributesAndComposition(t *testing.T) {
	node := newFakeNode(assetABI)
	node.handlers["getAttributeNames"] = func([]any) ([]any, error) {
		return []any{[]string{"acidity", "harvest"}}, nil
	}
	node.handlers["getAttribute"] = func(args []any) ([]any, error) {
		name := args[1].(string)
		return []any{attributeTuple{Name: name, Value: "value-" + name, Timestamp: big.NewInt(1700000100)}}, nil
	}
	node.handlers["getComposition"] = func([]any) ([]any, error) {
		return []any{[]compositionTuple{
			{ChildID: big.NewInt(2), ParentID: big.NewInt(1), QuantityUsed: big.NewInt(8000), Timestamp: big.NewInt(1700000200)},
		}}, nil
	}
	registry, err := NewAssetRegistry(node, registryAddr)
	require.NoError(t, err)

	names, err := registry.AttributeNames(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"acidity", "harvest"}, names)

	attribute, err := registry.Attribute(context.Background(), 2, "acidity")
	require.NoError(t, err)
	assert.Equal(t, domain.AttributeRecord{
		Name:      "acidity",
		Value:     "value-acidity",
		Timestamp: time.Unix(1700000100, 0).UTC(),
	}, attribute)

	edges, err := registry.Composition(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, uint64(2), edges[0].ChildID)
	assert.Equal(t, uint64(1), edges[0].ParentID)
	assert.Equal(t, 0, edges[0].QuantityUsed.Cmp(big.NewInt(8000)))
	assert.Equal(t, time.Unix(1700000200, 0).UTC(), edges[0].Timestamp)
}

func transferLog(t *testing.T, assetID int64, from, to string, quantity int64) ethrpc.Log {
	t.Helper()
	data, err := assetABI.Events[transferEventName].Inputs.NonIndexed().Pack(big.NewInt(quantity))
	require.NoError(t, err)
	return ethrpc.Log{
		Topics: []string{
			TransferTopic(),
			common.BigToHash(big.NewInt(assetID)).Hex(),
			common.BytesToHash(common.HexToAddress(from).Bytes()).Hex(),
			common.BytesToHash(common.HexToAddress(to).Bytes()).Hex(),
		},
		Data:        data,
		BlockNumber: 12,
		BlockHash:   "0xblock",
		TxHash:      "0xtx",
		TxIndex:     1,
		LogIndex:    3,
	}
}

func TestDecodeTransfer(t *testing.T) {
	event, err := DecodeTransfer(transferLog(t, 7, producerAddr, factoryAddr, 5000))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), event.AssetID)
	assert.Equal(t, producerAddr, event.From)
	assert.Equal(t, factoryAddr, event.To)
	assert.Equal(t, 0, event.Quantity.Cmp(big.NewInt(5000)))
	assert.Equal(t, uint64(12), event.BlockNumber)
	assert.Equal(t, uint64(1), event.TxIndex)
	assert.Equal(t, uint64(3), event.LogIndex)

	malformed := transferLog(t, 7, producerAddr, factoryAddr, 1)
	malformed.Topics = malformed.Topics[:2]
	_, err = DecodeTransfer(malformed)
	assert.Error(t, err)

	truncated := transferLog(t, 7, producerAddr, factoryAddr, 1)
	truncated.Data = truncated.Data[:10]
	_, err = DecodeTransfer(truncated)
	assert.Error(t, err)
}

func TestTransferTopic(t *testing.T) {
	event := assetABI.Events[transferEventName]
	assert.Equal(t, "ProductTransferred(uint256,address,address,uint256)", event.Sig)
	assert.Len(t, TransferTopic(), 66)
	assert.Equal(t, strings.ToLower(event.ID.Hex()), TransferTopic())
}

func TestAssetRegistryTransferEvents(t *testing.T) {
	node := newFakeNode(assetABI)
	removed := transferLog(t, 2, factoryAddr, producerAddr, 1)
	removed.Removed = true
	node.logs = []ethrpc.Log{transferLog(t, 2, producerAddr, factoryAddr, 5000), removed}

	registry, err := NewAssetRegistry(node, registryAddr)
	require.NoError(t, err)

	assetID := uint64(2)
	events, err := registry.TransferEvents(context.Background(), application.TransferQuery{
		AssetID:   &assetID,
		FromBlock: 1,
		ToBlock:   50,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, producerAddr, events[0].From)

	require.Len(t, node.queries, 1)
	query := node.queries[0]
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", query.Address)
	assert.Equal(t, uint64(1), query.FromBlock)
	assert.Equal(t, uint64(50), query.ToBlock)
	require.Len(t, query.Topics, 2)
	assert.Equal(t, []string{TransferTopic()}, query.Topics[0])
	assert.Equal(t, []string{common.BigToHash(big.NewInt(2)).Hex()}, query.Topics[1])
}

func TestAssetRegistryReceiptAndBlock(t *testing.T) {
	node := newFakeNode(assetABI)
	node.receipts["0xtx"] = domain.Receipt{TxHash: "0xtx", GasUsed: 21000}
	node.blocks[12] = domain.BlockHeader{Number: 12}
	registry, err := NewAssetRegistry(node, registryAddr)
	require.NoError(t, err)

	receipt, err := registry.Receipt(context.Background(), "0xtx")
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), receipt.GasUsed)

	_, err = registry.Receipt(context.Background(), "0xother")
	assert.True(t, errors.Is(err, application.ErrReceiptNotFound))

	block, err := registry.Block(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), block.Number)

	_, err = registry.Block(context.Background(), 13)
	assert.True(t, errors.Is(err, application.ErrBlockNotFound))
}
