package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

// Derivative types listed by the exchange.
const (
	DerivativeDayAheadSwap = "day_ahead_swap"
	DerivativeOption       = "options_contract"
	DerivativeFutureSwap   = "future_contract"
)

// Contract is a tradable derivative instrument.
type Contract struct {
	ID              int64           // Primary key, used as cache/subscription key
	Label           string          // Human-readable label (e.g., "BTC-Mini 28MAY2021 Next-Day Swap")
	DerivativeType  string          // "day_ahead_swap", "options_contract", "future_contract"
	ContractType    string          // "call" or "put" for options, "" otherwise
	UnderlyingAsset string          // "CBTC" or "ETH"
	CollateralAsset string          // Asset posted as collateral
	StrikePrice     decimal.Decimal // USD, zero for swaps
	Multiplier      int64           // Units of underlying per contract
	Active          bool            // Currently listed for trading
	DateLive        string          // ISO 8601
	DateExpires     string          // ISO 8601
	OpenInterest    int64
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// BookTop is the best bid/ask for a contract. Overwritten on each update;
// no history is retained.
type BookTop struct {
	ContractID int64
	BidPrice   decimal.Decimal // USD
	BidSize    int64
	AskPrice   decimal.Decimal // USD
	AskSize    int64
	Timestamp  int64 // Exchange clock (ns since epoch)
	ReceivedAt int64 // Local receive time (ns since epoch)
}

// Trade is an executed trade reported by the exchange.
type Trade struct {
	ID         string
	ContractID int64
	Price      decimal.Decimal // USD
	Size       int64
	IsAsk      bool // true if the resting order was an ask
	Timestamp  string
}

// -----------------------------------------------------------------------------
// Account state
// -----------------------------------------------------------------------------

// Balance is the last known collateral balance for one asset.
type Balance struct {
	Asset     string          // "USD", "CBTC", "ETH"
	Available decimal.Decimal // Free collateral, display units
	Locked    decimal.Decimal // Position-locked collateral, display units
	Timestamp int64           // ns since epoch
}

// Position is the last known open position for a contract.
type Position struct {
	ContractID int64
	Size       int64  // Contract count, always >= 0
	Side       string // "long" or "short"
	Timestamp  int64  // ns since epoch
}

// Fill records the cumulative filled size for an order.
type Fill struct {
	MID        uuid.UUID // Message ID of the order
	ContractID int64
	FilledSize int64
	Timestamp  int64 // ns since epoch
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// Order sides and types accepted by the trade API.
const (
	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"

	SwapPurposeUndisclosed = "undisclosed"
)

// OrderRequest describes a new order. Prices are integer cents, the wire
// format of the trade API.
type OrderRequest struct {
	OrderType   string `json:"order_type"`
	ContractID  int64  `json:"contract_id"`
	IsAsk       bool   `json:"is_ask"`
	SwapPurpose string `json:"swap_purpose"`
	Size        int64  `json:"size"`
	PriceCents  int64  `json:"price"`
	Volatile    bool   `json:"volatile"`
}

// OrderAck is the exchange's acknowledgement of a placed order.
type OrderAck struct {
	MID uuid.UUID // Message ID assigned by the exchange
}
