// Package geoip resolves remote IPs to a coarse location, treating the
// underlying database as an opaque collaborator behind a bounded cache.
package geoip

import (
	"net"
	"sync"

	"github.com/nodewatch/storj-node-monitor/infrastructure/cache"
	"github.com/nodewatch/storj-node-monitor/internal/model"
)

// Lookup is the opaque collaborator: anything that can resolve an IP to a
// location. A real deployment backs this with a MaxMind-style reader; tests
// use a fake.
type Lookup interface {
	Lookup(ip net.IP) (cache.GeoIPEntry, bool)
}

// Resolver enriches remote addresses with location data, never blocking the
// Parser: a cache miss enqueues a background lookup and returns immediately
// with a zero-value Location.
type Resolver struct {
	lookup Lookup
	cache  *cache.GeoIPCache

	mu      sync.Mutex
	pending map[string]bool
}

// New creates a Resolver with an LRU cache of the given capacity (default
// "GeoIP cache: LRU, capacity 5000, read-mostly").
func New(lookup Lookup, capacity int) (*Resolver, error) {
	c, err := cache.NewGeoIPCache(capacity)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		lookup:  lookup,
		cache:   c,
		pending: make(map[string]bool),
	}, nil
}

// Resolve returns the best-effort location for remoteIP. On a cache hit it
// returns the full entry. On a miss it schedules a background resolution
// and returns the zero Location immediately — the Parser must not block.
func (r *Resolver) Resolve(remoteIP string) model.Location {
	if remoteIP == "" {
		return model.Location{}
	}

	host := remoteIP
	if h, _, err := net.SplitHostPort(remoteIP); err == nil {
		host = h
	}

	if entry, ok := r.cache.Get(host); ok {
		return model.Location{Country: entry.CountryCode, Latitude: entry.Latitude, Longitude: entry.Longitude}
	}

	r.scheduleResolve(host)
	return model.Location{}
}

func (r *Resolver) scheduleResolve(host string) {
	r.mu.Lock()
	if r.pending[host] {
		r.mu.Unlock()
		return
	}
	r.pending[host] = true
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.pending, host)
			r.mu.Unlock()
		}()

		ip := net.ParseIP(host)
		if ip == nil {
			return
		}
		entry, ok := r.lookup.Lookup(ip)
		if !ok {
			return
		}
		r.cache.Add(host, entry)
	}()
}

// Len reports the current cache size (used by the management API's status
// endpoint and tests).
func (r *Resolver) Len() int {
	return r.cache.Len()
}
