package model

import "github.com/shopspring/decimal"

// The exchange quotes prices in integer cents and collateral in the
// smallest unit of each asset (cents, satoshis, gwei). These helpers
// convert to display units at the API boundary.

// FromCents converts integer cents to a USD decimal.
// 10050 -> 100.50
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents converts a USD decimal to integer cents, truncating sub-cent
// precision. The trade API only accepts whole-cent prices.
func ToCents(usd decimal.Decimal) int64 {
	return usd.Shift(2).IntPart()
}

// FromAssetUnits converts a raw collateral value to display units for the
// given asset symbol. Unknown assets pass through unscaled.
func FromAssetUnits(asset string, value int64) decimal.Decimal {
	switch asset {
	case "USD":
		return decimal.New(value, -2)
	case "BTC", "CBTC":
		return decimal.New(value, -8)
	case "ETH":
		return decimal.New(value, -9)
	}
	return decimal.New(value, 0)
}
