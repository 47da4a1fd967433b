// Package auth attaches LedgerX API credentials to outbound requests.
//
// LedgerX uses a single opaque JWT API key: REST requests carry it in an
// Authorization header, WebSocket connections pass it as a query token.
// Without a key, public market data still works; account channels and the
// trade API are unavailable.
package auth

import (
	"net/http"
	"net/url"
)

// Credentials holds the API key for signing requests.
type Credentials struct {
	APIKey string // JWT API key from the LedgerX dashboard, may be empty
}

// IsZero reports whether no credential is configured.
func (c Credentials) IsZero() bool {
	return c.APIKey == ""
}

// RESTHeaders returns the headers for an authenticated REST request.
// Returns an empty header set when no key is configured.
func (c Credentials) RESTHeaders() http.Header {
	h := http.Header{}
	if c.APIKey != "" {
		h.Set("Authorization", "JWT "+c.APIKey)
	}
	return h
}

// WSURL appends the auth token to a WebSocket endpoint URL. The endpoint is
// returned unchanged when no key is configured.
func (c Credentials) WSURL(endpoint string) (string, error) {
	if c.APIKey == "" {
		return endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("token", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
