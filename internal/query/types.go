package query

// BalanceResponse reports one address's collateral balances for a property.
type BalanceResponse struct {
	Address    string `json:"address"`
	PropertyID uint32 `json:"property_id"`

	Spendable     int64 `json:"spendable"`
	OpenContract  int64 `json:"open_contract"`
	MarginReserve int64 `json:"margin_reserve"`
	FeeCache      int64 `json:"fee_cache"`
	Total         int64 `json:"total"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse reports one address's position register on a contract.
type PositionResponse struct {
	Address    string `json:"address"`
	ContractID uint32 `json:"contract_id"`

	Position         int64 `json:"position"`
	EntryPrice       int64 `json:"entry_price"`
	BankruptcyPrice  int64 `json:"bankruptcy_price"`
	LiquidationPrice int64 `json:"liquidation_price"`
	Margin           int64 `json:"margin"`
	Leverage         int64 `json:"leverage"`
	UPNL             int64 `json:"upnl"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// BookResponse reports top-of-book for a contract.
type BookResponse struct {
	ContractID uint32 `json:"contract_id"`
	BestBid    int64  `json:"best_bid"`
	BestAsk    int64  `json:"best_ask"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PriceResponse reports weighted prices for a contract.
type PriceResponse struct {
	ContractID uint32 `json:"contract_id"`
	Block      int64  `json:"block"`
	Window     int64  `json:"window"`
	VWAP       int64  `json:"vwap"`
	TWAP       int64  `json:"twap"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// TransitionResponse is one row of position transition history.
type TransitionResponse struct {
	Sequence   int64  `json:"sequence"`
	Address    string `json:"address"`
	ContractID uint32 `json:"contract_id"`
	Transition string `json:"transition"`
	Amount     int64  `json:"amount"`
	Price      int64  `json:"price"`
	Fee        int64  `json:"fee"`
	Block      int64  `json:"block"`
}

// ContractStatsResponse reports aggregate execution stats for a contract.
type ContractStatsResponse struct {
	ContractID     uint32 `json:"contract_id"`
	LastPrice      int64  `json:"last_price"`
	LastBlock      int64  `json:"last_block"`
	ExecutedAmount int64  `json:"executed_amount"`
	Executions     int64  `json:"executions"`
	LastSequence   int64  `json:"last_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	LatestSequence  int64   `json:"latest_sequence"`
}
