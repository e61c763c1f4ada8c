package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/adapter"
	"inferd/internal/cache"
	"inferd/internal/config"
	"inferd/internal/httpapi"
	"inferd/internal/monitor"
	"inferd/internal/optimizer"
	"inferd/internal/orchestrator"
)

const defaultAddr = ":8080"

// runServe wires configuration into the orchestrator stack and serves until
// SIGINT/SIGTERM.
func runServe(ctx context.Context, cfgPath, addrOverride string, log zerolog.Logger) error {
	var cfg config.Config
	if cfgPath != "" {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
	}
	addr := cfg.Addr
	if addrOverride != "" {
		addr = addrOverride
	}
	if addr == "" {
		if v := os.Getenv("INFERD_ADDR"); v != "" {
			addr = v
		} else {
			addr = defaultAddr
		}
	}

	mon := monitor.New(time.Duration(cfg.MonitorIntervalSec)*time.Second, nil)
	orch := orchestrator.New(orchestrator.Config{
		Policy: orchestrator.FallbackPolicy{
			PrimaryProviderID:   cfg.Fallback.Primary,
			FallbackProviderIDs: cfg.Fallback.Order,
			MaxRetries:          cfg.Fallback.MaxRetries,
			PerRequestTimeout:   time.Duration(cfg.Fallback.RequestTimeoutSec) * time.Second,
			MinimumConfidence:   cfg.Fallback.MinConfidence,
			RequireConsensus:    cfg.Fallback.RequireConsensus,
		},
		Optimizer: optimizer.Config{
			BatchSize:          cfg.Tuning.BatchSize,
			BatchFloor:         cfg.Tuning.BatchFloor,
			BatchCeil:          cfg.Tuning.BatchCeil,
			MaxWait:            time.Duration(cfg.Tuning.BatchWaitMS) * time.Millisecond,
			Workers:            cfg.Tuning.Workers,
			MemHighWatermarkMB: cfg.Tuning.MemHighWatermarkMB,
			MemLowWatermarkMB:  cfg.Tuning.MemLowWatermarkMB,
			Cache: cache.Config{
				TTL: time.Duration(cfg.CacheTTLSec) * time.Second,
				Cap: cfg.CacheCap,
			},
		},
		CatalogTTL:     time.Duration(cfg.CatalogTTLSec) * time.Second,
		HealthInterval: time.Duration(cfg.HealthIntervalSec) * time.Second,
	}, mon, log)

	for _, b := range cfg.Backends {
		a := adapter.NewLlamaServer(b.ProviderID, b.BaseURL, b.APIKey, 5*time.Second)
		if err := orch.RegisterAdapter(b.ProviderID, a); err != nil {
			return err
		}
		log.Info().Str("provider", b.ProviderID).Str("base_url", b.BaseURL).Msg("backend registered")
	}

	mon.Start()
	defer mon.Stop()
	orch.StartHealthLoop()
	defer orch.Close()

	baseCtx, baseCancel := context.WithCancel(ctx)
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(log)

	srv := &http.Server{Addr: addr, Handler: httpapi.NewMux(orch)}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Int("backends", len(cfg.Backends)).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	case <-ctx.Done():
	}
	baseCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
