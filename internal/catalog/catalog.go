// Package catalog caches each tenant's bookable services.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/agendmed/pkg/logging"
)

// ErrUnavailable marks a failed catalog fetch, as opposed to an empty catalog.
var ErrUnavailable = errors.New("catalog: services unavailable")

const defaultTTL = 10 * time.Minute

// ServiceOffering is a bookable service. Treat as immutable once loaded.
type ServiceOffering struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	DurationMinutes int     `json:"duration"`
	Price           float64 `json:"price"`
}

// Fetcher loads the current services for a tenant from the system of record.
type Fetcher interface {
	FetchServices(ctx context.Context, tenantID string) ([]ServiceOffering, error)
}

type entry struct {
	services []ServiceOffering
	loadedAt time.Time
}

// Catalog is a tenant-keyed service cache.
type Catalog struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

type Option func(*Catalog)

// WithTTL sets how long a loaded catalog is served before Get reloads it.
func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

func New(fetcher Fetcher, logger *logging.Logger, opts ...Option) *Catalog {
	if fetcher == nil {
		panic("catalog: fetcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Catalog{
		fetcher: fetcher,
		ttl:     defaultTTL,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fetches the tenant's services and replaces the cached entry.
// On failure the previous entry is kept and the error wraps ErrUnavailable.
func (c *Catalog) Load(ctx context.Context, tenantID string) ([]ServiceOffering, error) {
	services, err := c.fetcher.FetchServices(ctx, tenantID)
	if err != nil {
		c.logger.Error("failed to load services", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("%w: tenant %s: %v", ErrUnavailable, tenantID, err)
	}
	stored := append([]ServiceOffering(nil), services...)

	c.mu.Lock()
	c.entries[tenantID] = entry{services: stored, loadedAt: c.now()}
	c.mu.Unlock()

	c.logger.Info("services loaded", "tenant_id", tenantID, "count", len(stored))
	return append([]ServiceOffering(nil), stored...), nil
}

// List returns the cached services for tenantID, empty before the first successful Load.
func (c *Catalog) List(tenantID string) []ServiceOffering {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tenantID]
	if !ok {
		return []ServiceOffering{}
	}
	return append([]ServiceOffering(nil), e.services...)
}

// Get serves the cached entry while fresh and reloads otherwise.
func (c *Catalog) Get(ctx context.Context, tenantID string) ([]ServiceOffering, error) {
	c.mu.RLock()
	e, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.loadedAt) < c.ttl {
		return append([]ServiceOffering(nil), e.services...), nil
	}
	return c.Load(ctx, tenantID)
}

// Invalidate drops the tenant's entry; the next Get reloads.
func (c *Catalog) Invalidate(tenantID string) {
	c.mu.Lock()
	delete(c.entries, tenantID)
	c.mu.Unlock()
}
