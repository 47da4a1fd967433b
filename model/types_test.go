package model

import (
	"encoding/json"
	"testing"
)

func TestOrderRequest_WireFormat(t *testing.T) {
	req := OrderRequest{
		OrderType:   OrderTypeLimit,
		ContractID:  22256362,
		IsAsk:       true,
		SwapPurpose: SwapPurposeUndisclosed,
		Size:        2,
		PriceCents:  3025400,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	// The trade API is strict about field names
	for _, key := range []string{"order_type", "contract_id", "is_ask", "swap_purpose", "size", "price", "volatile"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("wire payload missing %q", key)
		}
	}
	if wire["price"] != float64(3025400) {
		t.Errorf("price = %v, want cents 3025400", wire["price"])
	}
	if wire["order_type"] != "limit" {
		t.Errorf("order_type = %v, want limit", wire["order_type"])
	}
}
