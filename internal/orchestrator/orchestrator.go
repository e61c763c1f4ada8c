// Package orchestrator holds the primary/fallback adapter chain, applies
// the retry policy and confidence thresholds, and dispatches each request
// to the performance optimizer of the selected adapter.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"inferd/internal/adapter"
	"inferd/internal/catalog"
	"inferd/internal/monitor"
	"inferd/internal/optimizer"
	"inferd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxRetries        = 3
	defaultPerRequestTimeout = 60 * time.Second
	defaultHealthInterval    = 60 * time.Second
	healthProbeTimeout       = 5 * time.Second
)

// FallbackPolicy is configured once per orchestrator session and read-only
// during dispatch.
type FallbackPolicy struct {
	PrimaryProviderID   string
	FallbackProviderIDs []string
	// MaxRetries bounds total attempts across all providers.
	MaxRetries        int
	PerRequestTimeout time.Duration
	MinimumConfidence float64
	RequireConsensus  bool
}

// Config holds orchestrator construction tunables.
type Config struct {
	Policy         FallbackPolicy
	Optimizer      optimizer.Config
	CatalogTTL     time.Duration
	HealthInterval time.Duration
	Publisher      EventPublisher
}

// registration ties one provider id to its adapter, its optimizer (with its
// own response cache) and its circuit breaker.
type registration struct {
	providerID string
	backend    adapter.Adapter
	opt        *optimizer.Optimizer
	breaker    *gobreaker.CircuitBreaker

	mu          sync.Mutex
	health      types.HealthState
	lastChecked time.Time
}

func (r *registration) setHealth(h types.HealthState, at time.Time) (changed bool) {
	r.mu.Lock()
	changed = r.health != h
	r.health = h
	r.lastChecked = at
	r.mu.Unlock()
	return changed
}

func (r *registration) healthState() (types.HealthState, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.health, r.lastChecked
}

// Orchestrator owns the adapter registration set and the fallback policy.
type Orchestrator struct {
	mu     sync.RWMutex
	regs   map[string]*registration
	policy FallbackPolicy

	optCfg    Config
	mon       *monitor.Monitor
	cat       *catalog.Catalog
	pub       EventPublisher
	log       zerolog.Logger
	startTime time.Time

	healthMu     sync.Mutex
	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

// New constructs an Orchestrator. The monitor drives adaptive tuning for
// every registered optimizer through a single subscription.
func New(cfg Config, mon *monitor.Monitor, log zerolog.Logger) *Orchestrator {
	if cfg.Policy.MaxRetries <= 0 {
		cfg.Policy.MaxRetries = defaultMaxRetries
	}
	if cfg.Policy.PerRequestTimeout <= 0 {
		cfg.Policy.PerRequestTimeout = defaultPerRequestTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	o := &Orchestrator{
		regs:      make(map[string]*registration),
		policy:    cfg.Policy,
		optCfg:    cfg,
		mon:       mon,
		cat:       catalog.New(cfg.CatalogTTL, log),
		pub:       cfg.Publisher,
		log:       log,
		startTime: time.Now(),
	}
	if mon != nil {
		mon.Subscribe(o.tuneAll)
	}
	return o
}

// tuneAll forwards a monitor tick to every registered optimizer.
func (o *Orchestrator) tuneAll(snap monitor.Snapshot) {
	o.mu.RLock()
	regs := make([]*registration, 0, len(o.regs))
	for _, r := range o.regs {
		regs = append(regs, r)
	}
	o.mu.RUnlock()
	for _, r := range regs {
		r.opt.Tune(snap)
	}
}

// RegisterAdapter adds a backend under providerID, building its optimizer,
// its own response cache and its circuit breaker. Registering an already
// known provider fails rather than silently replacing it.
func (o *Orchestrator) RegisterAdapter(providerID string, backend adapter.Adapter) error {
	if providerID == "" || backend == nil {
		return ErrInvalidRegistration("provider id and adapter are required")
	}
	reg := &registration{
		providerID: providerID,
		backend:    backend,
		opt:        optimizer.New(providerID, backend, o.optCfg.Optimizer, o.log),
		health:     types.HealthUnknown,
	}
	reg.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    providerID,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only backend faults should trip the breaker; caller
			// cancellations and unsupported ops are not its business.
			return err == nil || !adapter.Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	o.mu.Lock()
	if _, exists := o.regs[providerID]; exists {
		o.mu.Unlock()
		reg.opt.Close()
		return ErrInvalidRegistration("provider already registered: " + providerID)
	}
	o.regs[providerID] = reg
	o.mu.Unlock()

	o.cat.Register(providerID, backend)
	o.pub.Publish(Event{Name: EventAdapterRegistered, ProviderID: providerID})
	o.log.Info().Str("provider", providerID).Msg("adapter registered")
	return nil
}

// UnregisterAdapter removes a provider everywhere: registration set,
// catalog, and its optimizer (whose queued work is failed, not leaked).
// No stale registration survives removal.
func (o *Orchestrator) UnregisterAdapter(providerID string) error {
	o.mu.Lock()
	reg, ok := o.regs[providerID]
	if !ok {
		o.mu.Unlock()
		return ErrUnknownProvider(providerID)
	}
	delete(o.regs, providerID)
	o.mu.Unlock()

	o.cat.Unregister(providerID)
	reg.opt.Close()
	o.pub.Publish(Event{Name: EventAdapterUnregistered, ProviderID: providerID})
	o.log.Info().Str("provider", providerID).Msg("adapter unregistered")
	return nil
}

// registration returns the live registration for providerID, if any.
func (o *Orchestrator) registration(providerID string) *registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.regs[providerID]
}

// chain returns provider ids in dispatch preference order: primary first,
// then the ordered fallbacks, then any other registered provider not named
// by the policy. Widening past the policy's list is deliberate: providers
// registered after the policy was written still serve as a last resort,
// and MaxRetries bounds how far dispatch walks the chain.
func (o *Orchestrator) chain() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	seen := make(map[string]bool, len(o.regs))
	out := make([]string, 0, len(o.regs))
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if _, ok := o.regs[id]; !ok {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(o.policy.PrimaryProviderID)
	for _, id := range o.policy.FallbackProviderIDs {
		add(id)
	}
	for id := range o.regs {
		add(id)
	}
	return out
}

// Ready reports whether at least one registered provider is usable (its
// last health probe did not fail).
func (o *Orchestrator) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, r := range o.regs {
		h, _ := r.healthState()
		if h != types.HealthUnhealthy {
			return true
		}
	}
	return false
}

// ClearCaches drops every provider's response cache.
func (o *Orchestrator) ClearCaches() {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, r := range o.regs {
		r.opt.ClearCache()
	}
}

// AllModels returns the aggregated, filtered model listing.
func (o *Orchestrator) AllModels(ctx context.Context, filter types.ModelFilter) ([]types.ModelRecord, error) {
	return o.cat.All(ctx, filter)
}

// DownloadModel routes a download to the owning provider's adapter.
func (o *Orchestrator) DownloadModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return o.cat.Download(ctx, modelID, providerID)
}

// DeleteModel routes a deletion to the owning provider's adapter.
func (o *Orchestrator) DeleteModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return o.cat.Delete(ctx, modelID, providerID)
}

// UpdateModel routes an update to the owning provider's adapter.
func (o *Orchestrator) UpdateModel(ctx context.Context, modelID, providerID string) (types.OperationResult, error) {
	return o.cat.Update(ctx, modelID, providerID)
}

// PerformanceMetrics aggregates throughput over every provider's optimizer.
// Averages are weighted by per-provider request counts.
func (o *Orchestrator) PerformanceMetrics() types.PerformanceMetrics {
	o.mu.RLock()
	regs := make([]*registration, 0, len(o.regs))
	for _, r := range o.regs {
		regs = append(regs, r)
	}
	o.mu.RUnlock()

	var out types.PerformanceMetrics
	var total int64
	var latencyWeighted, hitsWeighted float64
	for _, r := range regs {
		m := r.opt.Metrics()
		out.RequestsPerSecond += m.RequestsPerSecond
		latencyWeighted += m.AverageLatencyMS * float64(m.Total)
		hitsWeighted += m.CacheHitRate * float64(m.Total)
		total += m.Total
	}
	if total > 0 {
		out.AverageLatencyMS = latencyWeighted / float64(total)
		out.CacheHitRate = hitsWeighted / float64(total)
	}
	if o.mon != nil {
		out.MemoryUsageMB = o.mon.Snapshot().MemoryUsedMB
	}
	return out
}

// ResourceUsage exposes the monitor's latest snapshot.
func (o *Orchestrator) ResourceUsage() types.ResourceUsage {
	var snap monitor.Snapshot
	if o.mon != nil {
		snap = o.mon.Snapshot()
	}
	return types.ResourceUsage{
		Memory:        types.MemoryUsage{UsedMB: snap.MemoryUsedMB, AvailableMB: snap.MemoryAvailableMB},
		CPU:           types.CPUUsage{UsagePercent: snap.CPULoadPercent},
		SampledAtUnix: snap.SampledAt.Unix(),
	}
}

// Status reports registered providers in dispatch preference order.
func (o *Orchestrator) Status() types.StatusResponse {
	resp := types.StatusResponse{
		PrimaryProviderID: o.policy.PrimaryProviderID,
		UptimeSeconds:     int64(time.Since(o.startTime).Seconds()),
	}
	for _, id := range o.chain() {
		reg := o.registration(id)
		if reg == nil {
			continue
		}
		h, at := reg.healthState()
		ps := types.ProviderStatus{
			ProviderID:   id,
			Health:       h,
			BatchSize:    reg.opt.BatchSize(),
			Workers:      reg.opt.Workers(),
			CacheEntries: reg.opt.CacheLen(),
		}
		if !at.IsZero() {
			ps.LastCheckedUnix = at.Unix()
		}
		resp.Providers = append(resp.Providers, ps)
	}
	return resp
}

// Close stops the health loop and every optimizer.
func (o *Orchestrator) Close() {
	o.StopHealthLoop()
	o.mu.Lock()
	regs := make([]*registration, 0, len(o.regs))
	for _, r := range o.regs {
		regs = append(regs, r)
	}
	o.regs = make(map[string]*registration)
	o.mu.Unlock()
	for _, r := range regs {
		o.cat.Unregister(r.providerID)
		r.opt.Close()
	}
}
