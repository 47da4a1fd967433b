// Package model defines shared data types for the LedgerX client.
//
// Conventions:
//   - Money: decimal.Decimal in display units (USD, BTC, ETH). The wire
//     formats (cents, satoshis, gwei) are converted at the API boundary.
//   - Timestamps: int64 nanoseconds since Unix epoch, matching the
//     exchange's heartbeat clock.
//   - IDs: int64 for contract IDs, uuid.UUID for order message IDs (mids).
package model
