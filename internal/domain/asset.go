package domain

import (
	"math/big"
	"time"
)

// UnitsPerKilogram is the number of smallest ledger units in one displayed kilogram.
const UnitsPerKilogram = 1000

// Asset is a traceable batch as stored by the asset registry.
type Asset struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Creator     string    `json:"creator"`
	Quantity    *big.Int  `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
	Processed   bool      `json:"processed"`
	ParentID    *uint64   `json:"parentId,omitempty"`
}

// AttributeRecord is the current on-chain value of a named asset attribute.
type AttributeRecord struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// CompositionEdge records that ChildID was produced using QuantityUsed units of ParentID.
type CompositionEdge struct {
	ChildID      uint64    `json:"childId"`
	ParentID     uint64    `json:"parentId"`
	QuantityUsed *big.Int  `json:"quantityUsed"`
	Timestamp    time.Time `json:"timestamp"`
}

// AssetDetails is the atomic result of resolving one asset.
type AssetDetails struct {
	Asset       Asset             `json:"asset"`
	Attributes  []AttributeRecord `json:"attributes"`
	Composition []CompositionEdge `json:"composition"`
}
