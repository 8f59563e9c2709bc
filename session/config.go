package session

import (
	"context"

	"github.com/forbearing/sqlwhitelist/config"
)

// NewFromAppConfig builds a Client from config.App's Discovery and Session
// sections, layering any additional opts on top.
func NewFromAppConfig(ctx context.Context, opts ...Option) (*Client, error) {
	base := []Option{}
	switch {
	case len(config.App.Discovery.Servers) > 0:
		base = append(base, WithServers(config.App.Discovery.Servers...))
	case len(config.App.Discovery.URL) > 0:
		base = append(base, WithDiscoveryURL(config.App.Discovery.URL, config.App.Discovery.TTL, config.App.Session.AccountID, config.App.Session.VendorHost))
	default:
		base = append(base, WithAccountFallback(config.App.Session.AccountID, config.App.Session.VendorHost))
	}
	base = append(base, WithProtocolVersion(config.App.Session.ProtocolVersion), WithAppVersion(config.App.Session.AppVersion))
	if config.App.Session.PreventUnload {
		base = append(base, WithPreventUnload())
	}
	return New(ctx, append(base, opts...)...)
}
