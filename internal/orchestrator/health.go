package orchestrator

import (
	"context"
	"time"

	"inferd/pkg/types"
)

// CheckHealthNow probes every registered adapter once and updates its health
// state and last-checked time. Tests drive health deterministically through
// this instead of waiting out the interval.
func (o *Orchestrator) CheckHealthNow(ctx context.Context) {
	o.mu.RLock()
	regs := make([]*registration, 0, len(o.regs))
	for _, r := range o.regs {
		regs = append(regs, r)
	}
	o.mu.RUnlock()

	for _, reg := range regs {
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		healthy := reg.backend.CheckHealth(probeCtx)
		cancel()
		state := types.HealthHealthy
		if !healthy {
			state = types.HealthUnhealthy
		}
		if reg.setHealth(state, time.Now()) {
			o.pub.Publish(Event{Name: EventHealthChanged, ProviderID: reg.providerID, Fields: map[string]any{"health": string(state)}})
			o.log.Info().Str("provider", reg.providerID).Str("health", string(state)).Msg("adapter health changed")
		}
	}
}

// StartHealthLoop launches the periodic health probe task. Idempotent.
func (o *Orchestrator) StartHealthLoop() {
	o.healthMu.Lock()
	if o.healthCancel != nil {
		o.healthMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.healthCancel = cancel
	done := make(chan struct{})
	o.healthDone = done
	o.healthMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.optCfg.HealthInterval)
		defer ticker.Stop()
		o.CheckHealthNow(ctx)
		for {
			select {
			case <-ticker.C:
				o.CheckHealthNow(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopHealthLoop cancels the probe task and waits for it to exit.
func (o *Orchestrator) StopHealthLoop() {
	o.healthMu.Lock()
	cancel := o.healthCancel
	done := o.healthDone
	o.healthCancel = nil
	o.healthDone = nil
	o.healthMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
