package optimizer

import (
	"inferd/internal/monitor"
)

// CPU thresholds for worker tuning (percent).
const (
	cpuHighPercent = 80.0
	cpuLowPercent  = 40.0
)

// Tune applies the adaptive tuning rule for one resource monitor tick.
// Adjustments are monotonic per tick: at most one step per axis, so
// alternating pressure cannot make the optimizer oscillate.
//
// Memory above the high watermark shrinks batch size by 20% (floor
// BatchFloor); below the low watermark grows it by 20% (ceiling BatchCeil).
// CPU above 80% drops one worker (floor 1); below 40% adds one (ceiling 8).
func (o *Optimizer) Tune(snap monitor.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	switch {
	case o.cfg.MemHighWatermarkMB > 0 && snap.MemoryUsedMB > o.cfg.MemHighWatermarkMB:
		next := o.batchSize * 80 / 100
		if next < o.cfg.BatchFloor {
			next = o.cfg.BatchFloor
		}
		if next != o.batchSize {
			o.log.Debug().Int("from", o.batchSize).Int("to", next).Int("mem_mb", snap.MemoryUsedMB).Msg("shrinking batch size")
			o.batchSize = next
		}
	case o.cfg.MemLowWatermarkMB > 0 && snap.MemoryUsedMB < o.cfg.MemLowWatermarkMB:
		next := o.batchSize * 120 / 100
		if next > o.cfg.BatchCeil {
			next = o.cfg.BatchCeil
		}
		if next != o.batchSize {
			o.log.Debug().Int("from", o.batchSize).Int("to", next).Int("mem_mb", snap.MemoryUsedMB).Msg("growing batch size")
			o.batchSize = next
		}
	}
	batchSizeGauge.WithLabelValues(o.providerID).Set(float64(o.batchSize))

	switch {
	case snap.CPULoadPercent > cpuHighPercent && o.workers > workerFloor:
		o.log.Debug().Float64("cpu", snap.CPULoadPercent).Int("workers", o.workers-1).Msg("dropping a worker")
		o.removeWorkerLocked()
	case snap.CPULoadPercent < cpuLowPercent && o.workers < workerCeil:
		o.log.Debug().Float64("cpu", snap.CPULoadPercent).Int("workers", o.workers+1).Msg("adding a worker")
		o.addWorkerLocked()
	}
}
