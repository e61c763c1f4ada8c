// Package config loads the daemon configuration from yaml, json or toml
// files, selected by extension.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Backend describes one inference backend to register at startup.
type Backend struct {
	// Provider id used in the fallback policy and catalog.
	ProviderID string `json:"provider_id" yaml:"provider_id" toml:"provider_id"`
	// Base URL of an OpenAI-compatible completion server.
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key"`
}

// Fallback mirrors the orchestrator's dispatch policy.
type Fallback struct {
	Primary           string   `json:"primary" yaml:"primary" toml:"primary"`
	Order             []string `json:"order" yaml:"order" toml:"order"`
	MaxRetries        int      `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	RequestTimeoutSec int      `json:"request_timeout_sec" yaml:"request_timeout_sec" toml:"request_timeout_sec"`
	MinConfidence     float64  `json:"min_confidence" yaml:"min_confidence" toml:"min_confidence"`
	RequireConsensus  bool     `json:"require_consensus" yaml:"require_consensus" toml:"require_consensus"`
}

// Tuning holds the optimizer's adaptive tuning bounds.
type Tuning struct {
	BatchSize          int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	BatchFloor         int `json:"batch_floor" yaml:"batch_floor" toml:"batch_floor"`
	BatchCeil          int `json:"batch_ceil" yaml:"batch_ceil" toml:"batch_ceil"`
	BatchWaitMS        int `json:"batch_wait_ms" yaml:"batch_wait_ms" toml:"batch_wait_ms"`
	Workers            int `json:"workers" yaml:"workers" toml:"workers"`
	MemHighWatermarkMB int `json:"mem_high_watermark_mb" yaml:"mem_high_watermark_mb" toml:"mem_high_watermark_mb"`
	MemLowWatermarkMB  int `json:"mem_low_watermark_mb" yaml:"mem_low_watermark_mb" toml:"mem_low_watermark_mb"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by package defaults.
type Config struct {
	Addr               string    `json:"addr" yaml:"addr" toml:"addr"`
	MonitorIntervalSec int       `json:"monitor_interval_sec" yaml:"monitor_interval_sec" toml:"monitor_interval_sec"`
	HealthIntervalSec  int       `json:"health_interval_sec" yaml:"health_interval_sec" toml:"health_interval_sec"`
	CacheTTLSec        int       `json:"cache_ttl_sec" yaml:"cache_ttl_sec" toml:"cache_ttl_sec"`
	CacheCap           int       `json:"cache_cap" yaml:"cache_cap" toml:"cache_cap"`
	CatalogTTLSec      int       `json:"catalog_ttl_sec" yaml:"catalog_ttl_sec" toml:"catalog_ttl_sec"`
	Tuning             Tuning    `json:"tuning" yaml:"tuning" toml:"tuning"`
	Fallback           Fallback  `json:"fallback" yaml:"fallback" toml:"fallback"`
	Backends           []Backend `json:"backends" yaml:"backends" toml:"backends"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, cfg.validate()
}

// validate rejects configurations the orchestrator cannot act on.
func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.ProviderID == "" {
			return fmt.Errorf("backend missing provider_id")
		}
		if seen[b.ProviderID] {
			return fmt.Errorf("duplicate backend provider_id: %s", b.ProviderID)
		}
		seen[b.ProviderID] = true
		if b.BaseURL == "" {
			return fmt.Errorf("backend %s missing base_url", b.ProviderID)
		}
	}
	if c.Fallback.Primary != "" && len(c.Backends) > 0 && !seen[c.Fallback.Primary] {
		return fmt.Errorf("fallback primary %q is not a configured backend", c.Fallback.Primary)
	}
	if c.Fallback.MinConfidence < 0 || c.Fallback.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1]")
	}
	return nil
}
