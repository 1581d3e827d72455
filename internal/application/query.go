package application

// TransferFilter narrows the transfer events a pipeline run reconstructs.
type TransferFilter struct {
	AssetID   *uint64 `json:"asset_id,omitempty"`
	Address   string  `json:"address,omitempty"`
	FromBlock *uint64 `json:"from_block,omitempty"`
	ToBlock   *uint64 `json:"to_block,omitempty"`
}

// TransferQuery is the block-bounded log query sent to the ledger.
type TransferQuery struct {
	AssetID   *uint64
	FromBlock uint64
	ToBlock   uint64
}

type RunQueryFilter struct {
	Limit int
}
