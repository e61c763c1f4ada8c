// Package optimizer decides, per incoming request, whether to serve from
// cache, add to a forming batch, or dispatch immediately, and continuously
// tunes batch size and worker count from resource monitor snapshots.
//
// One Optimizer is bound to exactly one adapter and owns its own response
// cache; optimizers share nothing with each other.
package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inferd/internal/adapter"
	"inferd/internal/cache"
	"inferd/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultBatchSize  = 512
	defaultBatchFloor = 256
	defaultBatchCeil  = 1024
	defaultMaxWait    = 100 * time.Millisecond
	defaultWorkers    = 4

	workerFloor = 1
	workerCeil  = 8
)

// Config holds optimizer tunables.
type Config struct {
	// BatchSize is the starting max requests per batch; tuning moves it
	// between BatchFloor and BatchCeil.
	BatchSize  int
	BatchFloor int
	BatchCeil  int
	// MaxWait closes a non-full batch after this long.
	MaxWait time.Duration
	// Workers is the starting dispatch concurrency; tuning moves it
	// between 1 and 8.
	Workers int
	// Memory watermarks (MB) driving batch size tuning. Zero disables
	// the corresponding direction.
	MemHighWatermarkMB int
	MemLowWatermarkMB  int
	Cache              cache.Config
}

// Optimizer batches requests for a single adapter and serves repeats from
// its response cache.
type Optimizer struct {
	providerID string
	backend    adapter.Adapter
	cache      *cache.Cache
	cfg        Config
	log        zerolog.Logger

	mu         sync.Mutex
	pending    *batch
	batchSize  int
	workers    int
	workerQuit []chan struct{}
	dispatchCh chan *batch
	closed     bool

	stats stats
}

// New constructs an Optimizer bound to one adapter and starts its workers.
func New(providerID string, backend adapter.Adapter, cfg Config, log zerolog.Logger) *Optimizer {
	if cfg.BatchFloor <= 0 {
		cfg.BatchFloor = defaultBatchFloor
	}
	if cfg.BatchCeil < cfg.BatchFloor {
		cfg.BatchCeil = defaultBatchCeil
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchSize < cfg.BatchFloor {
		cfg.BatchSize = cfg.BatchFloor
	}
	if cfg.BatchSize > cfg.BatchCeil {
		cfg.BatchSize = cfg.BatchCeil
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.Workers < workerFloor || cfg.Workers > workerCeil {
		cfg.Workers = defaultWorkers
	}
	o := &Optimizer{
		providerID: providerID,
		backend:    backend,
		cache:      cache.New(cfg.Cache),
		cfg:        cfg,
		log:        log.With().Str("provider", providerID).Logger(),
		batchSize:  cfg.BatchSize,
		dispatchCh: make(chan *batch, 64),
	}
	o.mu.Lock()
	for i := 0; i < cfg.Workers; i++ {
		o.addWorkerLocked()
	}
	o.mu.Unlock()
	batchSizeGauge.WithLabelValues(providerID).Set(float64(o.batchSize))
	return o
}

// Process serves one completion request: cache lookup first, then batch
// enqueue. The caller blocks until its own result is ready or ctx is done;
// a canceled caller does not disturb siblings already batched with it, and
// its late backend result is discarded. Cached results carry NoConfidence
// since the original score is not retained.
func (o *Optimizer) Process(ctx context.Context, prompt string, opts types.CompletionOptions) (adapter.Result, bool, error) {
	start := time.Now()
	key := cache.Key(prompt, opts)
	if v, ok := o.cache.Get(key); ok {
		o.stats.record(true, true, time.Since(start))
		cacheHitsTotal.WithLabelValues(o.providerID).Inc()
		return adapter.Result{Text: v, Confidence: adapter.NoConfidence}, true, nil
	}

	it := &item{
		id:     uuid.NewString(),
		prompt: prompt,
		opts:   opts,
		key:    key,
		done:   make(chan itemResult, 1),
	}
	if err := o.enqueue(it); err != nil {
		o.stats.record(false, false, time.Since(start))
		return adapter.Result{}, false, err
	}

	select {
	case res := <-it.done:
		o.stats.record(res.err == nil, false, time.Since(start))
		return res.result, false, res.err
	case <-ctx.Done():
		it.abandoned.Store(true)
		o.stats.record(false, false, time.Since(start))
		return adapter.Result{}, false, ctx.Err()
	}
}

// enqueue adds it to the open batch, opening one (and arming its wait
// timer) when none exists. A batch that reaches the tuned size closes and
// dispatches immediately.
func (o *Optimizer) enqueue(it *item) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return adapter.ErrRequestFailed("optimizer closed")
	}
	if o.pending == nil {
		b := &batch{}
		o.pending = b
		b.timer = time.AfterFunc(o.cfg.MaxWait, func() { o.closeBatch(b) })
	}
	o.pending.items = append(o.pending.items, it)
	if len(o.pending.items) >= o.batchSize {
		o.closePendingLocked()
	}
	return nil
}

// closeBatch closes b if it is still the open batch (wait timer path).
func (o *Optimizer) closeBatch(b *batch) {
	o.mu.Lock()
	if o.pending != b || o.closed {
		o.mu.Unlock()
		return
	}
	o.closePendingLocked()
	o.mu.Unlock()
}

// closePendingLocked hands the open batch to the workers. Requires o.mu.
func (o *Optimizer) closePendingLocked() {
	b := o.pending
	o.pending = nil
	if b == nil || len(b.items) == 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	o.dispatchCh <- b
}

// worker goroutines drain the dispatch channel until told to quit.
func (o *Optimizer) addWorkerLocked() {
	quit := make(chan struct{})
	o.workerQuit = append(o.workerQuit, quit)
	o.workers++
	workersGauge.WithLabelValues(o.providerID).Set(float64(o.workers))
	go func() {
		for {
			select {
			case b := <-o.dispatchCh:
				o.dispatch(b)
			case <-quit:
				return
			}
		}
	}()
}

func (o *Optimizer) removeWorkerLocked() {
	if len(o.workerQuit) == 0 {
		return
	}
	quit := o.workerQuit[len(o.workerQuit)-1]
	o.workerQuit = o.workerQuit[:len(o.workerQuit)-1]
	o.workers--
	workersGauge.WithLabelValues(o.providerID).Set(float64(o.workers))
	close(quit)
}

// CacheLen reports the entry count of this optimizer's cache.
func (o *Optimizer) CacheLen() int { return o.cache.Len() }

// ClearCache drops every cached response.
func (o *Optimizer) ClearCache() { o.cache.Clear() }

// BatchSize returns the current tuned batch size.
func (o *Optimizer) BatchSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batchSize
}

// Workers returns the current worker count.
func (o *Optimizer) Workers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workers
}

// Close stops the workers and fails any still-queued requests. Safe to call
// once; Process calls after Close fail with RequestFailed.
func (o *Optimizer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	open := o.pending
	o.pending = nil
	if open != nil && open.timer != nil {
		open.timer.Stop()
	}
	for len(o.workerQuit) > 0 {
		o.removeWorkerLocked()
	}
	o.mu.Unlock()

	if open != nil {
		open.failAll(adapter.ErrRequestFailed("optimizer closed"))
	}
	for {
		select {
		case b := <-o.dispatchCh:
			b.failAll(adapter.ErrRequestFailed("optimizer closed"))
		default:
			return
		}
	}
}
