// Package stream implements the LedgerX market-data WebSocket client.
//
// The stream client:
//   - Maintains one persistent WebSocket connection to the exchange
//   - Handles reconnection with capped, jittered exponential backoff
//   - Replays the subscription set after every successful (re)connect
//   - Watches server heartbeat frames and forces a reconnect when stale
//   - Caches the last known book top, balance, and position per key
package stream
