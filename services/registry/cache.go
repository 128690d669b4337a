package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_registry_cache_hits_total",
		Help: "Client registry lookups served from memory.",
	}, []string{"network"})
	cacheMiss = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_registry_cache_miss_total",
		Help: "Client registry lookups that went to the store.",
	}, []string{"network"})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMiss)
}

const DefaultTTL = 60 * time.Second

type cacheKey struct {
	Network  string
	ClientID string
}

type cacheEntry struct {
	client    ClientConfig
	expiresAt time.Time
}

// Cache is a read-through, TTL-bounded view of client callback configuration.
// Entries expire passively; there is no other eviction.
type Cache struct {
	mu    sync.RWMutex
	items map[cacheKey]cacheEntry
	ttl   time.Duration
	group singleflight.Group
	repo  Repository
	now   func() time.Time
}

type CacheOption func(*Cache)

// WithClock sets the function used to evaluate expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func NewCache(repo Repository, ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		items: make(map[cacheKey]cacheEntry),
		ttl:   ttl,
		repo:  repo,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the configuration of clientID on network. Misses for the same
// key share a single store read. Not-found results are not cached.
func (c *Cache) Get(ctx context.Context, network, clientID string) (*ClientConfig, error) {
	key := cacheKey{Network: strings.ToUpper(network), ClientID: clientID}

	if client, ok := c.lookup(key); ok {
		cacheHits.WithLabelValues(key.Network).Inc()
		return client, nil
	}
	cacheMiss.WithLabelValues(key.Network).Inc()

	// The shared read ignores the cancellation of whichever caller started it.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.Network+"#"+key.ClientID, func() (interface{}, error) {
		if client, ok := c.lookup(key); ok {
			return client, nil
		}

		app, err := c.repo.FindByDataIdx(loadCtx, CallbackDataIdx(key.Network, key.ClientID))
		if err != nil {
			return nil, err
		}

		client := toClientConfig(key.Network, key.ClientID, app)
		c.mu.Lock()
		c.items[key] = cacheEntry{client: *client, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return client, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		client := *res.Val.(*ClientConfig)
		return &client, nil
	}
}

func (c *Cache) lookup(key cacheKey) (*ClientConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.items[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	client := entry.client
	return &client, true
}

// Len reports the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
