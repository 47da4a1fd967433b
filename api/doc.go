// Package api provides the LedgerX REST API client.
//
// The exchange splits its REST surface across two hosts:
//   - Market data: https://api.ledgerx.com (contracts, positions, trades)
//   - Trading:     https://trade.ledgerx.com/api (orders, book states, balance)
//
// Authenticated calls carry the JWT API key in an Authorization header.
// Transient failures (429, 5xx, timeouts) are retried with capped
// exponential backoff; credential rejections are surfaced immediately.
package api
