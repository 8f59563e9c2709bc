package session

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

// discoverer resolves a host to dial: either a shuffled literal server list
// (config.Discovery.Servers), or a discovery endpoint polled over HTTP GET
// and cached for TTL, with concurrent calls within the TTL window collapsed
// onto a single in-flight fetch via singleflight.
type discoverer struct {
	httpClient *http.Client
	url        string
	ttl        time.Duration
	servers    []string
	accountID  string
	vendorHost string

	group singleflight.Group

	mu        sync.Mutex
	cached    []string
	cachedAt  time.Time
}

func newDiscoverer(httpClient *http.Client, url string, ttl time.Duration, servers []string, accountID, vendorHost string) *discoverer {
	return &discoverer{
		httpClient: httpClient,
		url:        url,
		ttl:        ttl,
		servers:    servers,
		accountID:  accountID,
		vendorHost: vendorHost,
	}
}

// host returns the next host to dial, shuffled among equally-preferred
// candidates so repeated calls spread load rather than hammering the first
// entry.
func (d *discoverer) host(ctx context.Context) (string, error) {
	hosts, err := d.hosts(ctx)
	if err != nil {
		return "", err
	}
	if len(hosts) == 0 {
		return "", errors.Wrap(ErrDiscoveryFailed, "no candidate hosts")
	}
	return hosts[rand.Intn(len(hosts))], nil //nolint:gosec
}

func (d *discoverer) hosts(ctx context.Context) ([]string, error) {
	if len(d.servers) > 0 {
		return d.servers, nil
	}
	if len(d.url) == 0 {
		if len(d.accountID) > 0 && len(d.vendorHost) > 0 {
			return []string{fmt.Sprintf("%s.%s", d.accountID, d.vendorHost)}, nil
		}
		return nil, errors.Wrap(ErrDiscoveryFailed, "no server list and no discovery url configured")
	}

	d.mu.Lock()
	if len(d.cached) > 0 && time.Since(d.cachedAt) < d.ttl {
		cached := d.cached
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	v, err, _ := d.group.Do(d.url, func() (any, error) {
		return d.fetch(ctx)
	})
	if err != nil {
		if len(d.accountID) > 0 && len(d.vendorHost) > 0 {
			return []string{fmt.Sprintf("%s.%s", d.accountID, d.vendorHost)}, nil
		}
		return nil, errors.Mark(errors.Wrap(err, "discovery request failed"), ErrDiscoveryFailed)
	}
	return v.([]string), nil
}

func (d *discoverer) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building discovery request")
	}
	client := d.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "performing discovery request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var hosts []string
	if err := json.NewDecoder(resp.Body).Decode(&hosts); err != nil {
		return nil, errors.Wrap(err, "decoding discovery response")
	}

	d.mu.Lock()
	d.cached = hosts
	d.cachedAt = time.Now()
	d.mu.Unlock()

	return hosts, nil
}

// forget drops the cached host list, forcing the next host() call to
// re-discover — used after a transport error or close so a stale host
// isn't retried forever.
func (d *discoverer) forget() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
