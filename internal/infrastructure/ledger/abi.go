package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const participantRegistryABI = `[
	{"type":"function","name":"getAllParticipants","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"addr","type":"address"},
		{"name":"name","type":"string"},
		{"name":"role","type":"string"},
		{"name":"location","type":"string"},
		{"name":"active","type":"bool"}]}]},
	{"type":"function","name":"getParticipant","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"addr","type":"address"},
		{"name":"name","type":"string"},
		{"name":"role","type":"string"},
		{"name":"location","type":"string"},
		{"name":"active","type":"bool"}]}]}
]`

const assetRegistryABI = `[
	{"type":"function","name":"getProduct","stateMutability":"view",
	 "inputs":[{"name":"productId","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"id","type":"uint256"},
		{"name":"name","type":"string"},
		{"name":"description","type":"string"},
		{"name":"creator","type":"address"},
		{"name":"quantity","type":"uint256"},
		{"name":"timestamp","type":"uint256"},
		{"name":"isProcessed","type":"bool"},
		{"name":"parentProduct","type":"uint256"}]}]},
	{"type":"function","name":"getAttributeNames","stateMutability":"view",
	 "inputs":[{"name":"productId","type":"uint256"}],
	 "outputs":[{"name":"","type":"string[]"}]},
	{"type":"function","name":"getAttribute","stateMutability":"view",
	 "inputs":[{"name":"productId","type":"uint256"},{"name":"attrName","type":"string"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"name","type":"string"},
		{"name":"value","type":"string"},
		{"name":"timestamp","type":"uint256"}]}]},
	{"type":"function","name":"getComposition","stateMutability":"view",
	 "inputs":[{"name":"productId","type":"uint256"}],
	 "outputs":[{"name":"","type":"tuple[]","components":[
		{"name":"childId","type":"uint256"},
		{"name":"parentId","type":"uint256"},
		{"name":"quantityUsed","type":"uint256"},
		{"name":"timestamp","type":"uint256"}]}]},
	{"type":"event","name":"ProductTransferred","anonymous":false,"inputs":[
		{"name":"productId","type":"uint256","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"quantity","type":"uint256","indexed":false}]}
]`

var (
	participantABI = mustParseABI(participantRegistryABI)
	assetABI       = mustParseABI(assetRegistryABI)
)

// Tuple layouts. Field order must match the ABI components; unpacking is positional.
type participantTuple struct {
	Addr     common.Address `abi:"addr"`
	Name     string         `abi:"name"`
	Role     string         `abi:"role"`
	Location string         `abi:"location"`
	Active   bool           `abi:"active"`
}

type productTuple struct {
	ID            *big.Int       `abi:"id"`
	Name          string         `abi:"name"`
	Description   string         `abi:"description"`
	Creator       common.Address `abi:"creator"`
	Quantity      *big.Int       `abi:"quantity"`
	Timestamp     *big.Int       `abi:"timestamp"`
	IsProcessed   bool           `abi:"isProcessed"`
	ParentProduct *big.Int       `abi:"parentProduct"`
}

type attributeTuple struct {
	Name      string   `abi:"name"`
	Value     string   `abi:"value"`
	Timestamp *big.Int `abi:"timestamp"`
}

type compositionTuple struct {
	ChildID      *big.Int `abi:"childId"`
	ParentID     *big.Int `abi:"parentId"`
	QuantityUsed *big.Int `abi:"quantityUsed"`
	Timestamp    *big.Int `abi:"timestamp"`
}

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("parse contract abi: %v", err))
	}
	return parsed
}

var errOutOfRange = errors.New("value does not fit in uint64")

func toUint64(value *big.Int) (uint64, error) {
	if value == nil {
		return 0, nil
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("%w: %s", errOutOfRange, value)
	}
	return value.Uint64(), nil
}

func toTime(value *big.Int) (time.Time, error) {
	seconds, err := toUint64(value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(seconds), 0).UTC(), nil
}

func addressHex(address common.Address) string {
	return strings.ToLower(address.Hex())
}
