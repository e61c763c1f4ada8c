// Package catalog aggregates model inventories across registered adapters
// into a provider-keyed cache, and routes download/delete/update operations
// to the owning adapter.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/adapter"
	"inferd/pkg/types"
)

// DefaultTTL is the aggregate cache TTL when none is configured.
const DefaultTTL = 300 * time.Second

// providerEntry holds one adapter's cached inventory. mu serializes the
// mutating operations routed to that adapter; refreshes and reads go
// through the catalog-level lock.
type providerEntry struct {
	backend   adapter.Adapter
	mu        sync.Mutex
	records   []types.ModelRecord
	fetchedAt time.Time
	haveGood  bool
}

// Catalog is the unified, TTL-cached model listing.
type Catalog struct {
	mu        sync.Mutex
	providers map[string]*providerEntry
	ttl       time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// New constructs a Catalog. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration, log zerolog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{
		providers: make(map[string]*providerEntry),
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
}

// Register adds a provider to the aggregate. Its inventory is fetched
// lazily on the next read.
func (c *Catalog) Register(providerID string, backend adapter.Adapter) {
	c.mu.Lock()
	c.providers[providerID] = &providerEntry{backend: backend}
	c.mu.Unlock()
}

// Unregister drops a provider and its cached inventory.
func (c *Catalog) Unregister(providerID string) {
	c.mu.Lock()
	delete(c.providers, providerID)
	c.mu.Unlock()
}

// All refreshes stale provider entries then returns the filtered, sorted
// aggregate. A refresh failure for one provider keeps that provider's
// last-known-good records and never touches the others.
func (c *Catalog) All(ctx context.Context, filter types.ModelFilter) ([]types.ModelRecord, error) {
	c.mu.Lock()
	entries := make(map[string]*providerEntry, len(c.providers))
	for id, e := range c.providers {
		entries[id] = e
	}
	c.mu.Unlock()

	var out []types.ModelRecord
	for id, e := range entries {
		c.refresh(ctx, id, e)
		c.mu.Lock()
		out = append(out, e.records...)
		c.mu.Unlock()
	}
	return applyFilter(out, filter), nil
}

// refresh re-fetches a provider's inventory when its cache entry is stale.
func (c *Catalog) refresh(ctx context.Context, providerID string, e *providerEntry) {
	c.mu.Lock()
	fresh := e.haveGood && c.now().Sub(e.fetchedAt) <= c.ttl
	c.mu.Unlock()
	if fresh {
		return
	}
	records, err := e.backend.ListModels(ctx)
	if err != nil {
		// Keep last-known-good; a flapping provider must not blank
		// out the aggregate.
		c.log.Warn().Str("provider", providerID).Err(err).Msg("model list refresh failed, keeping cached records")
		return
	}
	c.mu.Lock()
	e.records = records
	e.fetchedAt = c.now()
	e.haveGood = true
	c.mu.Unlock()
}

// invalidate forces a full refresh on the next read. Mutations invalidate
// the whole aggregate rather than patching one entry; a few redundant
// refreshes are cheaper than a partially wrong cache.
func (c *Catalog) invalidate() {
	c.mu.Lock()
	for _, e := range c.providers {
		e.haveGood = false
	}
	c.mu.Unlock()
}

type mutation func(context.Context, string) (types.OperationResult, error)

// Download routes a model download to its owning provider.
func (c *Catalog) Download(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return c.mutate(ctx, modelID, providerID, func(e *providerEntry) mutation { return e.backend.DownloadModel })
}

// Delete routes a model deletion to its owning provider.
func (c *Catalog) Delete(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return c.mutate(ctx, modelID, providerID, func(e *providerEntry) mutation { return e.backend.DeleteModel })
}

// Update routes a model update to its owning provider.
func (c *Catalog) Update(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return c.mutate(ctx, modelID, providerID, func(e *providerEntry) mutation { return e.backend.UpdateModel })
}

// mutate serializes mutations per provider, surfaces UnsupportedOperation
// messages verbatim, and invalidates the whole aggregate on success.
func (c *Catalog) mutate(ctx context.Context, modelID, providerID string, op func(*providerEntry) mutation) (types.OperationResult, error) {
	c.mu.Lock()
	e, ok := c.providers[providerID]
	c.mu.Unlock()
	if !ok {
		return types.OperationResult{}, ErrProviderNotFound(providerID)
	}
	e.mu.Lock()
	res, err := op(e)(ctx, modelID)
	e.mu.Unlock()
	if err != nil {
		return types.OperationResult{Success: false, Message: err.Error(), Error: err.Error()}, err
	}
	if res.Success {
		c.invalidate()
	}
	return res, nil
}
