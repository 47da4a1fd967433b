package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/openderiv/ledgerx-data/auth"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no heartbeat)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// AuthError reports a credential rejected during the WebSocket handshake.
// It is surfaced to the caller and never retried automatically.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("websocket auth rejected (status %d)", e.StatusCode)
}

// ServerError is an error frame sent by the exchange over an established
// connection.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// ConnectionState is the lifecycle state of the stream connection. Owned
// exclusively by the Manager; readers observe it via State().
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticated
	StateSubscribed
	StateDegraded
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a single WebSocket connection.
type ClientConfig struct {
	URL              string        // Full dial URL, auth token included
	HandshakeTimeout time.Duration // WebSocket upgrade timeout
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Inbound message channel buffer
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// Config configures the stream Manager.
type Config struct {
	URL               string           // WebSocket endpoint (e.g., wss://api.ledgerx.com/ws)
	Credentials       auth.Credentials // Optional; account channels need it
	HeartbeatTimeout  time.Duration    // Max time without a server heartbeat frame
	ReconnectBaseWait time.Duration    // Base wait for reconnection backoff
	ReconnectMaxWait  time.Duration    // Cap for reconnection backoff
	WriteTimeout      time.Duration    // Write deadline for sends
	EventBufferSize   int              // Caller-facing event channel buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "wss://api.ledgerx.com/ws",
		HeartbeatTimeout:  30 * time.Second,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		WriteTimeout:      5 * time.Second,
		EventBufferSize:   1024,
	}
}
