package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openderiv/ledgerx-data/model"
)

// ListOpenOrders fetches all resting limit orders directly from the
// exchange.
func (c *Client) ListOpenOrders(ctx context.Context) ([]APIOrder, error) {
	var resp OpenOrdersResponse
	if err := c.tradeGet(ctx, "/open-orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	return resp.Data, nil
}

// CreateOrder places an order and returns the exchange-assigned message ID.
func (c *Client) CreateOrder(ctx context.Context, req model.OrderRequest) (*model.OrderAck, error) {
	if req.OrderType == "" {
		req.OrderType = model.OrderTypeLimit
	}
	if req.SwapPurpose == "" {
		req.SwapPurpose = model.SwapPurposeUndisclosed
	}

	var resp CreateOrderResponse
	if err := c.tradePost(ctx, "/orders", req, &resp); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	mid, err := uuid.Parse(resp.Data.MID)
	if err != nil {
		return nil, fmt.Errorf("create order: parse mid %q: %w", resp.Data.MID, err)
	}

	return &model.OrderAck{MID: mid}, nil
}

// CancelOrder cancels a single resting limit order.
func (c *Client) CancelOrder(ctx context.Context, mid uuid.UUID, contractID int64) error {
	payload := map[string]int64{"contract_id": contractID}
	if err := c.tradeDelete(ctx, "/orders/"+mid.String(), payload); err != nil {
		return fmt.Errorf("cancel order %s: %w", mid, err)
	}
	return nil
}

// CancelAllOrders deletes every outstanding order for the account's MPID.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if err := c.tradeDelete(ctx, "/orders", nil); err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	return nil
}

// CancelReplaceOrder atomically swaps a resting limit order for a new one.
// The contract cannot change; price (cents) and size can.
func (c *Client) CancelReplaceOrder(ctx context.Context, mid uuid.UUID, contractID, priceCents, size int64) (*model.OrderAck, error) {
	payload := map[string]int64{
		"contract_id": contractID,
		"price":       priceCents,
		"size":        size,
	}

	var resp CreateOrderResponse
	if err := c.tradePost(ctx, "/orders/"+mid.String()+"/edit", payload, &resp); err != nil {
		return nil, fmt.Errorf("cancel-replace order %s: %w", mid, err)
	}

	newMID, err := uuid.Parse(resp.Data.MID)
	if err != nil {
		// Some deployments return an empty body on edit; keep the old mid.
		return &model.OrderAck{MID: mid}, nil
	}
	return &model.OrderAck{MID: newMID}, nil
}
