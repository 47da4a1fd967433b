package api

import (
	"context"
	"fmt"

	"github.com/openderiv/ledgerx-data/model"
)

// ListPositions fetches all positions held by the account.
func (c *Client) ListPositions(ctx context.Context) ([]model.Position, error) {
	var resp PositionsResponse
	if err := c.get(ctx, "/trading/positions", nil, &resp); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	positions := make([]model.Position, 0, len(resp.Data))
	for i := range resp.Data {
		positions = append(positions, resp.Data[i].ToModel())
	}
	return positions, nil
}

// GetContractPosition fetches the account's position for one contract.
func (c *Client) GetContractPosition(ctx context.Context, contractID int64) (*model.Position, error) {
	var resp SinglePositionResponse
	path := fmt.Sprintf("/trading/contracts/%d/position", contractID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get position %d: %w", contractID, err)
	}
	pos := resp.Data.ToModel()
	return &pos, nil
}

// ListPositionTrades fetches the account's trades for one position.
func (c *Client) ListPositionTrades(ctx context.Context, contractID int64) ([]model.Trade, error) {
	var resp TradesResponse
	path := fmt.Sprintf("/trading/positions/%d/trades", contractID)
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list position trades %d: %w", contractID, err)
	}
	return resp.trades(), nil
}

// ListTrades fetches the account's trades.
func (c *Client) ListTrades(ctx context.Context) ([]model.Trade, error) {
	var resp TradesResponse
	if err := c.get(ctx, "/trading/trades", nil, &resp); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return resp.trades(), nil
}

// ListGlobalTrades fetches all trades in the market.
func (c *Client) ListGlobalTrades(ctx context.Context) ([]model.Trade, error) {
	var resp TradesResponse
	if err := c.get(ctx, "/trading/trades/global", nil, &resp); err != nil {
		return nil, fmt.Errorf("list global trades: %w", err)
	}
	return resp.trades(), nil
}

func (r *TradesResponse) trades() []model.Trade {
	trades := make([]model.Trade, 0, len(r.Data))
	for i := range r.Data {
		trades = append(trades, r.Data[i].ToModel())
	}
	return trades
}

// ListTransactions fetches all debits and credits on the account.
func (c *Client) ListTransactions(ctx context.Context) ([]Transaction, error) {
	var resp TransactionsResponse
	if err := c.get(ctx, "/funds/transactions", nil, &resp); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return resp.Data, nil
}

// GetBalances fetches account collateral balances. Deprecated upstream;
// prefer the stream's balance channel for live values.
func (c *Client) GetBalances(ctx context.Context) ([]model.Balance, error) {
	var resp BalancesResponse
	if err := c.tradeGet(ctx, "/balance", nil, &resp); err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	assets := make(map[string]struct{}, len(resp.Data.Available)+len(resp.Data.Locked))
	for asset := range resp.Data.Available {
		assets[asset] = struct{}{}
	}
	for asset := range resp.Data.Locked {
		assets[asset] = struct{}{}
	}

	balances := make([]model.Balance, 0, len(assets))
	for asset := range assets {
		balances = append(balances, model.Balance{
			Asset:     asset,
			Available: model.FromAssetUnits(asset, resp.Data.Available[asset]),
			Locked:    model.FromAssetUnits(asset, resp.Data.Locked[asset]),
		})
	}
	return balances, nil
}
