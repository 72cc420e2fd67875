// Package config loads the pathkvsd server configuration from an
// optional HuJSON (JSON-with-comments) file, layered as defaults, then
// the file, then CLI flags (applied by the caller after Load returns).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds pathkvsd's runtime configuration.
type Config struct {
	DataPath    string `json:"data_path"`
	ListenAddr  string `json:"listen_addr"`
	MetricsAddr string `json:"metrics_addr,omitempty"`
	LogLevel    string `json:"log_level,omitempty"`
	GCInterval  string `json:"gc_interval,omitempty"` // reserved for future use; unused by the core
}

// Default returns pathkvsd's built-in defaults.
func Default() Config {
	return Config{
		DataPath:   "pathkvs.db",
		ListenAddr: ":6314",
		LogLevel:   "info",
	}
}

// Load reads a HuJSON config file at path and merges it over Default.
// A missing file is not an error — it simply yields the defaults, so
// that running pathkvsd with no config file at all is a normal case.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	var fromFile Config
	if err := json.Unmarshal(standardized, &fromFile); err != nil {
		return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
	}

	cfg = merge(cfg, fromFile)
	return cfg, nil
}

// merge overlays any non-zero field of override onto base.
func merge(base, override Config) Config {
	if override.DataPath != "" {
		base.DataPath = override.DataPath
	}
	if override.ListenAddr != "" {
		base.ListenAddr = override.ListenAddr
	}
	if override.MetricsAddr != "" {
		base.MetricsAddr = override.MetricsAddr
	}
	if override.LogLevel != "" {
		base.LogLevel = override.LogLevel
	}
	if override.GCInterval != "" {
		base.GCInterval = override.GCInterval
	}
	return base
}
