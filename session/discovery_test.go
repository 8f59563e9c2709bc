package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscovererLiteralServers(t *testing.T) {
	d := newDiscoverer(nil, "", 0, []string{"a.example.com", "b.example.com"}, "", "")
	hosts, err := d.hosts(context.Background())
	if err != nil {
		t.Fatalf("hosts: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("hosts = %v, want 2 entries", hosts)
	}
}

func TestDiscovererAccountFallback(t *testing.T) {
	d := newDiscoverer(nil, "", 0, nil, "acme", "svc.example.com")
	host, err := d.host(context.Background())
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if host != "acme.svc.example.com" {
		t.Fatalf("host = %q, want acme.svc.example.com", host)
	}
}

func TestDiscovererNoConfigFails(t *testing.T) {
	d := newDiscoverer(nil, "", 0, nil, "", "")
	if _, err := d.host(context.Background()); err == nil {
		t.Fatal("expected error with no servers, no url, no account fallback")
	}
}

func TestDiscovererHTTPCachesWithinTTL(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode([]string{"one.example.com", "two.example.com"})
	}))
	defer srv.Close()

	d := newDiscoverer(srv.Client(), srv.URL, time.Minute, nil, "", "")
	for range 5 {
		if _, err := d.hosts(context.Background()); err != nil {
			t.Fatalf("hosts: %v", err)
		}
	}
	if hits != 1 {
		t.Fatalf("discovery endpoint hit %d times, want 1 (cached)", hits)
	}
}

func TestDiscovererForgetBustsCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		json.NewEncoder(w).Encode([]string{"one.example.com"})
	}))
	defer srv.Close()

	d := newDiscoverer(srv.Client(), srv.URL, time.Minute, nil, "", "")
	if _, err := d.hosts(context.Background()); err != nil {
		t.Fatalf("hosts: %v", err)
	}
	d.forget()
	if _, err := d.hosts(context.Background()); err != nil {
		t.Fatalf("hosts: %v", err)
	}
	if hits != 2 {
		t.Fatalf("discovery endpoint hit %d times after forget, want 2", hits)
	}
}

func TestDiscovererHTTPFailureFallsBackToAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newDiscoverer(srv.Client(), srv.URL, time.Minute, nil, "acme", "svc.example.com")
	host, err := d.host(context.Background())
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if host != "acme.svc.example.com" {
		t.Fatalf("host = %q, want fallback acme.svc.example.com", host)
	}
}
