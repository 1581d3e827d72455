package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"provindex/internal/application"
	"provindex/internal/domain"
	"provindex/internal/infrastructure/ethrpc"

	"github.com/ethereum/go-ethereum/common"
)

// Node is the subset of the JSON-RPC client the asset registry needs.
type Node interface {
	Caller
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FetchLogs(ctx context.Context, query ethrpc.LogQuery) ([]ethrpc.Log, error)
	TransactionReceipt(ctx context.Context, txHash string) (domain.Receipt, bool, error)
	BlockByNumber(ctx context.Context, number uint64) (domain.BlockHeader, bool, error)
}

// AssetRegistry reads products, their attributes and composition, and the transfer events
// the registry contract emits.
type AssetRegistry struct {
	node    Node
	address string
}

func NewAssetRegistry(node Node, address string) (*AssetRegistry, error) {
	if node == nil {
		return nil, errors.New("rpc node is required")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid asset registry address %q", address)
	}
	return &AssetRegistry{node: node, address: strings.ToLower(address)}, nil
}

func (r *AssetRegistry) Asset(ctx context.Context, id uint64) (domain.Asset, error) {
	var out struct {
		Product productTuple
	}
	if err := r.call(ctx, "getProduct", &out, new(big.Int).SetUint64(id)); err != nil {
		if isRevert(err) {
			return domain.Asset{}, fmt.Errorf("%w: %d", application.ErrAssetNotFound, id)
		}
		return domain.Asset{}, err
	}
	product := out.Product
	if product.ID == nil || product.ID.Sign() == 0 {
		return domain.Asset{}, fmt.Errorf("%w: %d", application.ErrAssetNotFound, id)
	}

	assetID, err := toUint64(product.ID)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("product id: %w", err)
	}
	createdAt, err := toTime(product.Timestamp)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("product timestamp: %w", err)
	}
	asset := domain.Asset{
		ID:          assetID,
		Name:        product.Name,
		Description: product.Description,
		Creator:     addressHex(product.Creator),
		Quantity:    nonNil(product.Quantity),
		CreatedAt:   createdAt,
		Processed:   product.IsProcessed,
	}
	if product.ParentProduct != nil && product.ParentProduct.Sign() > 0 {
		parent, err := toUint64(product.ParentProduct)
		if err != nil {
			return domain.Asset{}, fmt.Errorf("parent product: %w", err)
		}
		asset.ParentID = &parent
	}
	return asset, nil
}

func (r *AssetRegistry) AttributeNames(ctx context.Context, id uint64) ([]string, error) {
	var names []string
	if err := r.call(ctx, "getAttributeNames", &names, new(big.Int).SetUint64(id)); err != nil {
		return nil, err
	}
	return names, nil
}

func (r *AssetRegistry) Attribute(ctx context.Context, id uint64, name string) (domain.AttributeRecord, error) {
	var out struct {
		Attribute attributeTuple
	}
	if err := r.call(ctx, "getAttribute", &out, new(big.Int).SetUint64(id), name); err != nil {
		return domain.AttributeRecord{}, err
	}
	timestamp, err := toTime(out.Attribute.Timestamp)
	if err != nil {
		return domain.AttributeRecord{}, fmt.Errorf("attribute timestamp: %w", err)
	}
	return domain.AttributeRecord{
		Name:      out.Attribute.Name,
		Value:     out.Attribute.Value,
		Timestamp: timestamp,
	}, nil
}

func (r *AssetRegistry) Composition(ctx context.Context, id uint64) ([]domain.CompositionEdge, error) {
	var tuples []compositionTuple
	if err := r.call(ctx, "getComposition", &tuples, new(big.Int).SetUint64(id)); err != nil {
		return nil, err
	}
	edges := make([]domain.CompositionEdge, 0, len(tuples))
	for _, tuple := range tuples {
		child, err := toUint64(tuple.ChildID)
		if err != nil {
			return nil, fmt.Errorf("composition child: %w", err)
		}
		parent, err := toUint64(tuple.ParentID)
		if err != nil {
			return nil, fmt.Errorf("composition parent: %w", err)
		}
		timestamp, err := toTime(tuple.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("composition timestamp: %w", err)
		}
		edges = append(edges, domain.CompositionEdge{
			ChildID:      child,
			ParentID:     parent,
			QuantityUsed: nonNil(tuple.QuantityUsed),
			Timestamp:    timestamp,
		})
	}
	return edges, nil
}

func (r *AssetRegistry) call(ctx context.Context, method string, out any, args ...any) error {
	input, err := assetABI.Pack(method, args...)
	if err != nil {
		return err
	}
	output, err := r.node.Call(ctx, r.address, input)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := assetABI.UnpackIntoInterface(out, method, output); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

func isRevert(err error) bool {
	var rpcErr *ethrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == 3 || strings.Contains(strings.ToLower(rpcErr.Message), "revert")
}

func nonNil(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return value
}
