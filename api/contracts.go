package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/openderiv/ledgerx-data/model"
)

// ListContractsOptions filter GET /trading/contracts.
type ListContractsOptions struct {
	Active         bool   // Only currently listed contracts
	DerivativeType string // "day_ahead_swap", "options_contract", "future_contract"
	ContractType   string // "call" or "put"
	Asset          string // Underlying asset ("CBTC", "ETH")
	Limit          int
	Offset         int
}

func (o ListContractsOptions) query() url.Values {
	q := url.Values{}
	if o.Active {
		q.Set("active", "true")
	}
	if o.DerivativeType != "" {
		q.Set("derivative_type", o.DerivativeType)
	}
	if o.ContractType != "" {
		q.Set("contract_type", o.ContractType)
	}
	if o.Asset != "" {
		q.Set("asset", o.Asset)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	return q
}

// ListContracts fetches one page of listed contracts.
func (c *Client) ListContracts(ctx context.Context, opts ListContractsOptions) (*ContractsResponse, error) {
	var resp ContractsResponse
	if err := c.get(ctx, "/trading/contracts", opts.query(), &resp); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return &resp, nil
}

// ListAllContracts fetches all contracts matching the options by paging
// through results.
func (c *Client) ListAllContracts(ctx context.Context, opts ListContractsOptions) ([]model.Contract, error) {
	if opts.Limit <= 0 {
		opts.Limit = 200
	}

	var all []model.Contract
	for {
		resp, err := c.ListContracts(ctx, opts)
		if err != nil {
			return nil, err
		}

		for i := range resp.Data {
			all = append(all, resp.Data[i].ToModel())
		}

		if resp.Meta.Next == "" || len(resp.Data) == 0 {
			break
		}
		opts.Offset += len(resp.Data)
	}

	return all, nil
}

// ListTradedContracts fetches contracts the account has traded.
func (c *Client) ListTradedContracts(ctx context.Context) (*ContractsResponse, error) {
	var resp ContractsResponse
	if err := c.get(ctx, "/trading/contracts/traded", nil, &resp); err != nil {
		return nil, fmt.Errorf("list traded contracts: %w", err)
	}
	return &resp, nil
}

// GetContract fetches a single contract by ID.
func (c *Client) GetContract(ctx context.Context, contractID int64) (*model.Contract, error) {
	var resp SingleContractResponse
	path := fmt.Sprintf("/trading/contracts/%d", contractID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get contract %d: %w", contractID, err)
	}
	contract := resp.Data.ToModel()
	return &contract, nil
}

// GetContractTicker fetches the best bid/ask, 24h volume, and last trade
// for a contract.
func (c *Client) GetContractTicker(ctx context.Context, contractID int64) (*TickerResponse, error) {
	var resp TickerResponse
	path := fmt.Sprintf("/trading/contracts/%d/ticker", contractID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get ticker %d: %w", contractID, err)
	}
	return &resp, nil
}

// GetBookState fetches the full resting-order book for a contract from the
// trade API.
func (c *Client) GetBookState(ctx context.Context, contractID int64) (*BookStateResponse, error) {
	var resp BookStateResponse
	path := fmt.Sprintf("/book-states/%d", contractID)
	if err := c.tradeGet(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get book state %d: %w", contractID, err)
	}
	return &resp, nil
}

// BookTop reduces the REST book state to the best bid and ask. Intended
// for one-shot lookups; live consumers should use the stream client.
func (c *Client) BookTop(ctx context.Context, contractID int64) (*model.BookTop, error) {
	resp, err := c.GetBookState(ctx, contractID)
	if err != nil {
		return nil, err
	}

	top := model.BookTop{
		ContractID: contractID,
		ReceivedAt: time.Now().UnixNano(),
	}

	var bestBid, bestAsk *BookState
	for i := range resp.Data.BookStates {
		level := &resp.Data.BookStates[i]
		if level.IsAsk {
			if bestAsk == nil || level.Price < bestAsk.Price {
				bestAsk = level
			}
		} else {
			if bestBid == nil || level.Price > bestBid.Price {
				bestBid = level
			}
		}
	}

	if bestBid != nil {
		top.BidPrice = model.FromCents(bestBid.Price)
		top.BidSize = bestBid.Size
		if bestBid.Clock > top.Timestamp {
			top.Timestamp = bestBid.Clock
		}
	}
	if bestAsk != nil {
		top.AskPrice = model.FromCents(bestAsk.Price)
		top.AskSize = bestAsk.Size
		if bestAsk.Clock > top.Timestamp {
			top.Timestamp = bestAsk.Clock
		}
	}

	return &top, nil
}

// NextDaySwapID returns the contract ID for the next-day swap on an asset.
func (c *Client) NextDaySwapID(ctx context.Context, asset string) (int64, error) {
	resp, err := c.ListContracts(ctx, ListContractsOptions{
		Active:         true,
		DerivativeType: model.DerivativeDayAheadSwap,
		Asset:          asset,
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("no active next-day swap for %s", asset)
	}
	return resp.Data[0].ID, nil
}

// ClosestCall returns the closest-expiry call option contract for an asset.
func (c *Client) ClosestCall(ctx context.Context, asset string) (*model.Contract, error) {
	resp, err := c.ListContracts(ctx, ListContractsOptions{
		Active:         true,
		DerivativeType: model.DerivativeOption,
		ContractType:   "call",
		Asset:          asset,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no active calls for %s", asset)
	}

	// The API orders contracts by expiry descending; the last entry is the
	// closest expiry.
	contract := resp.Data[len(resp.Data)-1].ToModel()
	return &contract, nil
}
