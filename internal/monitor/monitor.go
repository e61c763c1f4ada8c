// Package monitor samples host memory and CPU on a fixed interval and
// exposes the latest snapshot without blocking readers.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DefaultInterval is the sampling period when none is configured.
const DefaultInterval = 30 * time.Second

// Snapshot is a read-only view of host resources. It is replaced wholesale
// on each sampling tick; readers never observe a partial update.
type Snapshot struct {
	MemoryUsedMB      int
	MemoryAvailableMB int
	CPULoadPercent    float64
	SampledAt         time.Time
}

// SampleFunc produces one Snapshot. Injectable for tests.
type SampleFunc func() Snapshot

// Listener receives each new snapshot. Listeners must be lightweight and
// non-blocking; the sampling loop calls them inline.
type Listener func(Snapshot)

// Monitor periodically samples resources into an atomically replaced
// snapshot. Snapshot reads never block, and no consumer operation can
// block the sampling tick.
type Monitor struct {
	interval time.Duration
	sample   SampleFunc

	snap atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners []Listener
	cancel    context.CancelFunc
	done      chan struct{}
}

// New constructs a Monitor. A zero interval uses DefaultInterval; a nil
// sample function uses the gopsutil host sampler.
func New(interval time.Duration, sample SampleFunc) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sample == nil {
		sample = hostSample
	}
	m := &Monitor{interval: interval, sample: sample}
	m.snap.Store(&Snapshot{})
	return m
}

// hostSample reads host memory and CPU via gopsutil. Failures leave the
// affected fields at zero rather than erroring; the monitor adjusts, never
// blocks.
func hostSample() Snapshot {
	s := Snapshot{SampledAt: time.Now()}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryUsedMB = int(vm.Used / (1024 * 1024))
		s.MemoryAvailableMB = int(vm.Available / (1024 * 1024))
	}
	// Instantaneous load since the previous call; the first reading is 0.
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPULoadPercent = pct[0]
	}
	return s
}

// Snapshot returns the most recent snapshot. Never blocks.
func (m *Monitor) Snapshot() Snapshot {
	return *m.snap.Load()
}

// Subscribe registers a listener invoked once per sampling tick.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// SampleNow performs one deterministic tick: sample, publish, notify.
// Tests drive ticks through this instead of waiting out the interval.
func (m *Monitor) SampleNow() Snapshot {
	s := m.sample()
	if s.SampledAt.IsZero() {
		s.SampledAt = time.Now()
	}
	m.snap.Store(&s)
	m.mu.Lock()
	ls := make([]Listener, len(m.listeners))
	copy(ls, m.listeners)
	m.mu.Unlock()
	for _, l := range ls {
		l(s)
	}
	return s
}

// Start launches the periodic sampling task. It samples once immediately
// so consumers have a snapshot before the first interval elapses.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	m.SampleNow()
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.SampleNow()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the sampling task and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
