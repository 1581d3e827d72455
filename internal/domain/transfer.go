package domain

import (
	"math/big"
	"time"
)

// TransferEvent is a decoded ProductTransferred log.
type TransferEvent struct {
	AssetID     uint64
	From        string
	To          string
	Quantity    *big.Int
	TxHash      string
	BlockNumber uint64
	BlockHash   string
	TxIndex     uint64
	LogIndex    uint64
}

// Before reports whether e precedes other in ledger order.
func (e TransferEvent) Before(other TransferEvent) bool {
	if e.BlockNumber != other.BlockNumber {
		return e.BlockNumber < other.BlockNumber
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	return e.LogIndex < other.LogIndex
}

// Receipt holds the execution metrics of a transaction.
type Receipt struct {
	TxHash            string
	BlockNumber       uint64
	TxIndex           uint64
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
}

// BlockHeader holds the block fields the pipeline needs.
type BlockHeader struct {
	Number    uint64
	Hash      string
	Timestamp time.Time
}

// Execution is the receipt and block metadata resolved for one event.
type Execution struct {
	GasUsed   uint64
	GasPrice  *big.Int
	Timestamp time.Time
}
