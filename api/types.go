package api

import (
	"github.com/openderiv/ledgerx-data/model"
)

// The market-data API wraps every payload in {"data": ...}; list endpoints
// add a {"meta": ...} pagination block.

// Meta is the pagination block on list responses.
type Meta struct {
	Next       string `json:"next"`
	Previous   string `json:"previous"`
	TotalCount int64  `json:"total_count"`
}

// APIContract is a contract as returned by the exchange. Prices in cents.
type APIContract struct {
	ID              int64  `json:"id"`
	Label           string `json:"label"`
	Name            string `json:"name"`
	DerivativeType  string `json:"derivative_type"`
	Type            string `json:"type"` // "call", "put", "swap", "future"
	IsCall          bool   `json:"is_call"`
	UnderlyingAsset string `json:"underlying_asset"`
	CollateralAsset string `json:"collateral_asset"`
	StrikePrice     int64  `json:"strike_price"` // cents
	Multiplier      int64  `json:"multiplier"`
	Active          bool   `json:"active"`
	DateLive        string `json:"date_live"`
	DateExpires     string `json:"date_expires"`
	OpenInterest    int64  `json:"open_interest"`
}

// ToModel converts an APIContract to model.Contract.
func (c *APIContract) ToModel() model.Contract {
	contractType := c.Type
	if contractType == "" && c.DerivativeType == model.DerivativeOption {
		if c.IsCall {
			contractType = "call"
		} else {
			contractType = "put"
		}
	}

	return model.Contract{
		ID:              c.ID,
		Label:           c.Label,
		DerivativeType:  c.DerivativeType,
		ContractType:    contractType,
		UnderlyingAsset: c.UnderlyingAsset,
		CollateralAsset: c.CollateralAsset,
		StrikePrice:     model.FromCents(c.StrikePrice),
		Multiplier:      c.Multiplier,
		Active:          c.Active,
		DateLive:        c.DateLive,
		DateExpires:     c.DateExpires,
		OpenInterest:    c.OpenInterest,
	}
}

// ContractsResponse from GET /trading/contracts
type ContractsResponse struct {
	Data []APIContract `json:"data"`
	Meta Meta          `json:"meta"`
}

// SingleContractResponse from GET /trading/contracts/{id}
type SingleContractResponse struct {
	Data APIContract `json:"data"`
}

// TickerResponse from GET /trading/contracts/{id}/ticker. Prices in cents.
type TickerResponse struct {
	Data struct {
		Bid       int64 `json:"bid"`
		Ask       int64 `json:"ask"`
		LastTrade struct {
			Price int64 `json:"last_price"`
			Size  int64 `json:"size"`
		} `json:"last_trade"`
		Volume24h int64 `json:"volume_24h"`
	} `json:"data"`
}

// APIPosition is a position as returned by the exchange.
type APIPosition struct {
	ID         int64  `json:"id"`
	ContractID int64  `json:"contract"`
	Size       int64  `json:"size"`
	Type       string `json:"type"` // "long" or "short"
	Assignment int64  `json:"assigned_size"`
}

// ToModel converts an APIPosition to model.Position. Timestamp is zero:
// REST positions carry no exchange clock.
func (p *APIPosition) ToModel() model.Position {
	pos := model.Position{
		ContractID: p.ContractID,
		Size:       p.Size,
		Side:       p.Type,
	}
	if pos.Side == "" {
		pos.Side = "long"
		if pos.Size < 0 {
			pos.Size = -pos.Size
			pos.Side = "short"
		}
	}
	return pos
}

// PositionsResponse from GET /trading/positions
type PositionsResponse struct {
	Data []APIPosition `json:"data"`
	Meta Meta          `json:"meta"`
}

// SinglePositionResponse from GET /trading/contracts/{id}/position
type SinglePositionResponse struct {
	Data APIPosition `json:"data"`
}

// APITrade is a trade as returned by the exchange. Prices in cents.
type APITrade struct {
	ID         string `json:"id"`
	ContractID int64  `json:"contract_id"`
	Price      int64  `json:"filled_price"`
	Size       int64  `json:"filled_size"`
	IsAsk      bool   `json:"side_is_ask"`
	Timestamp  string `json:"timestamp"`
}

// ToModel converts an APITrade to model.Trade.
func (t *APITrade) ToModel() model.Trade {
	return model.Trade{
		ID:         t.ID,
		ContractID: t.ContractID,
		Price:      model.FromCents(t.Price),
		Size:       t.Size,
		IsAsk:      t.IsAsk,
		Timestamp:  t.Timestamp,
	}
}

// TradesResponse from GET /trading/trades and /trading/trades/global
type TradesResponse struct {
	Data []APITrade `json:"data"`
	Meta Meta       `json:"meta"`
}

// Transaction is a debit or credit on the account.
type Transaction struct {
	ID        int64  `json:"id"`
	Asset     string `json:"asset"`
	Amount    int64  `json:"amount"` // smallest asset unit
	DebitType string `json:"debit_post_balance"`
	State     string `json:"state"`
	Created   string `json:"created_time"`
}

// TransactionsResponse from GET /funds/transactions
type TransactionsResponse struct {
	Data []Transaction `json:"data"`
	Meta Meta          `json:"meta"`
}

// BookState is one resting order level in a contract's book.
type BookState struct {
	ContractID int64  `json:"contract_id"`
	IsAsk      bool   `json:"is_ask"`
	Price      int64  `json:"price"` // cents
	Size       int64  `json:"size"`
	MID        string `json:"mid"`
	Clock      int64  `json:"clock"`
}

// BookStateResponse from GET /book-states/{id}
type BookStateResponse struct {
	Data struct {
		ContractID int64       `json:"contract_id"`
		BookStates []BookState `json:"book_states"`
	} `json:"data"`
}

// APIOrder is a resting order as returned by the trade API.
type APIOrder struct {
	MID        string `json:"mid"`
	ContractID int64  `json:"contract_id"`
	IsAsk      bool   `json:"is_ask"`
	Price      int64  `json:"price"` // cents
	Size       int64  `json:"size"`
	FilledSize int64  `json:"filled_size"`
	OrderType  string `json:"order_type"`
	Status     string `json:"status"`
}

// OpenOrdersResponse from GET /open-orders
type OpenOrdersResponse struct {
	Data []APIOrder `json:"data"`
}

// CreateOrderResponse from POST /orders
type CreateOrderResponse struct {
	Data struct {
		MID string `json:"mid"`
	} `json:"data"`
}

// BalancesResponse from GET /balance (deprecated upstream; prefer the
// stream's balance channel). Values in smallest asset units.
type BalancesResponse struct {
	Data struct {
		Available map[string]int64 `json:"available_balances"`
		Locked    map[string]int64 `json:"position_locked_balances"`
	} `json:"data"`
}
