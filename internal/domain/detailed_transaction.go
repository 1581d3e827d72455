package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coordinates is a [latitude, longitude] pair.
type Coordinates [2]float64

// Origin is the fallback position for unknown or malformed locations.
var Origin = Coordinates{0, 0}

// DetailedTransaction is a fully resolved transfer, ready for display.
type DetailedTransaction struct {
	ID              string            `json:"id"`
	AssetID         uint64            `json:"assetId"`
	BlockNumber     uint64            `json:"blockNumber"`
	TxIndex         uint64            `json:"txIndex"`
	LogIndex        uint64            `json:"logIndex"`
	GasUsed         uint64            `json:"gasUsed"`
	GasPrice        string            `json:"gasPrice"`
	Timestamp       time.Time         `json:"timestamp"`
	Product         string            `json:"product"`
	Description     string            `json:"description"`
	Quantity        string            `json:"quantity"`
	QuantityKg      decimal.Decimal   `json:"quantityKg"`
	Attributes      []AttributeRecord `json:"attributes"`
	Composition     []CompositionEdge `json:"composition"`
	From            Participant       `json:"from"`
	To              Participant       `json:"to"`
	FromCoordinates Coordinates       `json:"fromCoordinates"`
	ToCoordinates   Coordinates       `json:"toCoordinates"`
}
