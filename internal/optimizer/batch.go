package optimizer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"inferd/internal/adapter"
	"inferd/pkg/types"
)

// item is one caller's place in a batch. done is buffered so delivery never
// blocks on a departed caller; abandoned marks a timed-out caller whose
// eventual result must be discarded.
type item struct {
	id        string
	prompt    string
	opts      types.CompletionOptions
	key       string
	done      chan itemResult
	abandoned atomic.Bool
}

type itemResult struct {
	result adapter.Result
	err    error
}

func (it *item) deliver(res itemResult) {
	select {
	case it.done <- res:
	default:
	}
}

// batch is an ordered run of requests dispatched together. Consumed exactly
// once: either by a worker or by failAll on shutdown.
type batch struct {
	items []*item
	timer *time.Timer
}

func (b *batch) failAll(err error) {
	for _, it := range b.items {
		it.deliver(itemResult{err: err})
	}
}

// dispatch runs every queued request against the backend in submission
// order. One request's failure yields an error for that caller only; a
// batch-level fault (e.g., a panicking backend) degrades to RequestFailed
// for every request not yet answered rather than losing them silently.
func (o *Optimizer) dispatch(b *batch) {
	start := time.Now()
	delivered := 0
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Int("pending", len(b.items)-delivered).Msg("batch dispatch panicked")
			for _, it := range b.items[delivered:] {
				it.deliver(itemResult{err: adapter.ErrRequestFailed(fmt.Sprintf("backend panic: %v", r))})
			}
		}
		batchDispatchDuration.WithLabelValues(o.providerID).Observe(time.Since(start).Seconds())
		batchSizeObserved.WithLabelValues(o.providerID).Observe(float64(len(b.items)))
	}()

	for _, it := range b.items {
		// A timed-out caller's slot is skipped entirely; whatever the
		// backend would have produced for it is discarded.
		if it.abandoned.Load() {
			delivered++
			continue
		}
		res, err := o.backend.Complete(context.Background(), it.prompt, it.opts)
		if err != nil {
			o.log.Debug().Str("request_id", it.id).Err(err).Msg("request failed in batch")
			it.deliver(itemResult{err: err})
			delivered++
			continue
		}
		o.cache.Set(it.key, res.Text)
		it.deliver(itemResult{result: res})
		delivered++
	}
}
