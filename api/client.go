package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openderiv/ledgerx-data/auth"
)

// Default endpoints.
const (
	DefaultBaseURL  = "https://api.ledgerx.com"
	DefaultTradeURL = "https://trade.ledgerx.com/api"
)

// Client provides access to the LedgerX REST API.
type Client struct {
	baseURL    string
	tradeURL   string
	creds      auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. An empty credential restricts
// the client to public market data.
func NewClient(creds auth.Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		tradeURL: DefaultTradeURL,
		creds:    creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithBaseURL overrides the market-data endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTradeURL overrides the trading endpoint.
func WithTradeURL(u string) ClientOption {
	return func(c *Client) {
		c.tradeURL = u
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
