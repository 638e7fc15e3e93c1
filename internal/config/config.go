// Package config manages govswitch daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete govswitch daemon configuration.
type Config struct {
	Topology TopologyConfig `koanf:"topology"`
	Switch   SwitchConfig   `koanf:"switch"`
	Link     LinkConfig     `koanf:"link"`
	Server   ServerConfig   `koanf:"server"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// TopologyConfig describes the logical graph over switch instances
// (spec.md §6 CLI surface: --topology, --num-switches).
type TopologyConfig struct {
	// Kind is "ring", "line", or "mesh".
	Kind       string `koanf:"kind"`
	NumSwitches int    `koanf:"num_switches"`
}

// SwitchConfig holds the per-switch capacities (spec.md §3).
type SwitchConfig struct {
	BurstSize        int    `koanf:"burst_size"`
	QueueCapacity    int    `koanf:"queue_capacity"`
	MACTableCapacity int    `koanf:"mac_table_capacity"`
	StaticMACFile    string `koanf:"static_mac_file"`
}

// LinkConfig holds simulated virtual-link characteristics (spec.md §4.D).
// They are loaded and validated here; the daemon does not apply them, and
// every endpoint it builds uses fabric.DefaultEndpointConfig.
type LinkConfig struct {
	BaseLatencyUs   int64   `koanf:"base_latency_us"`
	ExtraDelayUs    int64   `koanf:"extra_delay_us"`
	JitterUs        int64   `koanf:"jitter_us"`
	LossProbability float64 `koanf:"loss_probability"`
	QueueCapacity   int     `koanf:"queue_capacity"`
}

// ServerConfig holds the control/monitoring HTTP API address
// (SPEC_FULL.md §6: plain net/http + JSON, in place of the teacher's
// ConnectRPC surface).
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the capacities named in
// spec.md §3-4 as typical: 256-entry MAC tables, 512-frame priority
// rings, 32-frame service bursts, lossless zero-delay links.
func DefaultConfig() *Config {
	return &Config{
		Topology: TopologyConfig{
			Kind:        "ring",
			NumSwitches: 3,
		},
		Switch: SwitchConfig{
			BurstSize:        32,
			QueueCapacity:    512,
			MACTableCapacity: 256,
		},
		Link: LinkConfig{
			QueueCapacity: 16384,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for govswitch configuration.
// Variables are named GOVSWITCH_<section>_<key>, e.g. GOVSWITCH_LINK_JITTER_US.
const envPrefix = "GOVSWITCH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GOVSWITCH_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GOVSWITCH_LINK_JITTER_US -> link.jitter_us: the
// first underscore separates the section from the key, the rest belong to
// the key.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"topology.kind":              defaults.Topology.Kind,
		"topology.num_switches":      defaults.Topology.NumSwitches,
		"switch.burst_size":          defaults.Switch.BurstSize,
		"switch.queue_capacity":      defaults.Switch.QueueCapacity,
		"switch.mac_table_capacity":  defaults.Switch.MACTableCapacity,
		"switch.static_mac_file":     defaults.Switch.StaticMACFile,
		"link.base_latency_us":       defaults.Link.BaseLatencyUs,
		"link.extra_delay_us":        defaults.Link.ExtraDelayUs,
		"link.jitter_us":             defaults.Link.JitterUs,
		"link.loss_probability":      defaults.Link.LossProbability,
		"link.queue_capacity":        defaults.Link.QueueCapacity,
		"server.addr":                defaults.Server.Addr,
		"metrics.addr":               defaults.Metrics.Addr,
		"metrics.path":               defaults.Metrics.Path,
		"log.level":                  defaults.Log.Level,
		"log.format":                 defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	ErrInvalidTopologyKind    = errors.New("topology.kind must be ring, line, or mesh")
	ErrInvalidNumSwitches     = errors.New("topology.num_switches must be >= 2 (>= 3 for ring)")
	ErrInvalidBurstSize       = errors.New("switch.burst_size must be > 0")
	ErrInvalidQueueCapacity   = errors.New("queue_capacity must be > 0")
	ErrInvalidMACTableCap     = errors.New("switch.mac_table_capacity must be > 0")
	ErrInvalidLossProbability = errors.New("link.loss_probability must be within [0,1]")
	ErrEmptyServerAddr        = errors.New("server.addr must not be empty")
)

var validTopologyKinds = map[string]bool{"ring": true, "line": true, "mesh": true}

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if !validTopologyKinds[cfg.Topology.Kind] {
		return ErrInvalidTopologyKind
	}

	minSwitches := 2
	if cfg.Topology.Kind == "ring" {
		minSwitches = 3
	}
	if cfg.Topology.NumSwitches < minSwitches {
		return ErrInvalidNumSwitches
	}

	if cfg.Switch.BurstSize <= 0 {
		return ErrInvalidBurstSize
	}
	if cfg.Switch.QueueCapacity <= 0 {
		return ErrInvalidQueueCapacity
	}
	if cfg.Switch.MACTableCapacity <= 0 {
		return ErrInvalidMACTableCap
	}
	if cfg.Link.QueueCapacity <= 0 {
		return ErrInvalidQueueCapacity
	}

	if cfg.Link.LossProbability < 0 || cfg.Link.LossProbability > 1 {
		return ErrInvalidLossProbability
	}

	if cfg.Server.Addr == "" {
		return ErrEmptyServerAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the
// corresponding slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
