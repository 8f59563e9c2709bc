package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/forbearing/sqlwhitelist/types"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithServers configures a literal, shuffled server list — no discovery
// endpoint is consulted.
func WithServers(servers ...string) Option {
	return func(c *Client) {
		if len(servers) == 0 {
			return
		}
		c.discoverer = newDiscoverer(c.httpClient, "", 0, servers, "", "")
	}
}

// WithDiscoveryURL configures an HTTP GET discovery endpoint returning a
// JSON array of hosts, cached for ttl. accountID and vendorHost, if both
// set, are used as a fallback host (accountID.vendorHost) when discovery
// fails.
func WithDiscoveryURL(url string, ttl time.Duration, accountID, vendorHost string) Option {
	return func(c *Client) {
		c.discoverer = newDiscoverer(c.httpClient, url, ttl, nil, accountID, vendorHost)
	}
}

// WithAccountFallback configures discovery with no literal server list and
// no endpoint — only the accountID.vendorHost fallback host.
func WithAccountFallback(accountID, vendorHost string) Option {
	return func(c *Client) {
		c.discoverer = newDiscoverer(c.httpClient, "", 0, nil, accountID, vendorHost)
	}
}

// WithHTTPClient sets the *http.Client used for discovery GET requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
			if c.discoverer != nil {
				c.discoverer.httpClient = client
			}
		}
	}
}

// WithDialer overrides the websocket dialer, e.g. for TLS config or a
// custom NetDialContext in tests.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithReconnectRateLimit rate-limits Reconnect attempts.
func WithReconnectRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		if r <= 0 || burst <= 0 {
			return
		}
		c.reconnect = rate.NewLimiter(r, burst)
	}
}

// WithLogger sets the structured logger used for warnings about dropped
// frames, transport loss, and unhandled pushes.
func WithLogger(logger types.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProtocolVersion overrides the protocol major.minor sent in HELLO.
// Default "1.0".
func WithProtocolVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.protocolVersion = version
		}
	}
}

// WithAppVersion sets the application version sent in HELLO.
func WithAppVersion(version string) Option {
	return func(c *Client) { c.appVersion = version }
}

// WithPreventUnload registers the client with the process-wide unload
// guard, draining WAIT_FOR_SEND on SIGINT/SIGTERM before the process would
// otherwise exit.
func WithPreventUnload() Option {
	return func(c *Client) { c.preventUnload = true }
}
