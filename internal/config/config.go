// Package config loads the small set of knobs the store's bootstrap needs
// (spec.md §6 "CLI / configuration surface"): eviction policy selector,
// memory budget, AOF path, listen address, shard count, script worker
// count.
//
// Grounded on the teacher's pack-mate agilira-metis's config.go: an
// optional JSON file (metis.json there, an arbitrary -config path here)
// unmarshaled into a flat struct via encoding/json, with defaults filled
// in first so a missing or partial file still produces a usable config.
// rkv layers flag overrides on top exactly as the teacher's own
// cmd/bench/main.go layers `flag` values over compiled-in defaults.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// Config is every knob spec.md §6 names, plus MetricsAddr. The TTL-sweep
// and memory-evict tick intervals are internal/evictor's compiled-in
// constants and are not configurable here.
type Config struct {
	ListenAddr        string `json:"listen_addr"`
	AOFPath           string `json:"aof_path"`
	MemoryBudgetBytes int64  `json:"memory_budget_bytes"`
	ShardsPerDB       int    `json:"shards_per_db"`
	EvictionPolicy    string `json:"eviction_policy"` // "lru" | "lfu" | "2q"
	ScriptWorkers     int    `json:"script_workers"`
	MetricsAddr       string `json:"metrics_addr"` // empty disables the /metrics server
}

// Default returns the compiled-in defaults, applied before any JSON file
// or flag override, matching agilira-metis's getDefaultConfig() + overlay
// order.
func Default() Config {
	return Config{
		ListenAddr:        "127.0.0.1:6379",
		AOFPath:           "rkv.aof",
		MemoryBudgetBytes: 512 << 20,
		ShardsPerDB:       32,
		EvictionPolicy:    "lru",
		ScriptWorkers:     8,
		MetricsAddr:       "",
	}
}

// Load reads path (if non-empty) as a JSON-encoded partial Config overlaid
// on Default(), matching agilira-metis's loadJSONConfig "apply simple
// config values on top of defaults" behavior. An empty path is not an
// error — it simply returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlags binds fs to the fields of a copy of cfg, with cfg's current
// values (the result of Default()/Load()) as each flag's default — so
// "-config file then flag override" layers exactly as SPEC_FULL.md §3
// describes. It returns a pointer to that copy, which fs.Parse fills in
// place, and a pointer to the "-config" flag's value.
func RegisterFlags(fs *flag.FlagSet, cfg Config) (*Config, *string) {
	out := cfg
	fs.StringVar(&out.ListenAddr, "listen", cfg.ListenAddr, "TCP listen address")
	fs.StringVar(&out.AOFPath, "aof", cfg.AOFPath, "append-only log file path")
	fs.Int64Var(&out.MemoryBudgetBytes, "memory-budget", cfg.MemoryBudgetBytes, "global memory budget in bytes (<=0 disables memory eviction)")
	fs.IntVar(&out.ShardsPerDB, "shards", cfg.ShardsPerDB, "shards per database (rounded up to a power of two)")
	fs.StringVar(&out.EvictionPolicy, "eviction", cfg.EvictionPolicy, "eviction policy: lru | lfu | 2q")
	fs.IntVar(&out.ScriptWorkers, "script-workers", cfg.ScriptWorkers, "number of scripting sandbox workers")
	fs.StringVar(&out.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus /metrics listen address (empty disables)")
	configPath := fs.String("config", "", "optional JSON config file, applied before flag overrides")
	return &out, configPath
}

// Validate rejects configurations that would make bootstrap meaningless,
// matching spec.md §8's boundary-behavior spirit (non-positive TTLs are a
// command-shape error; a non-positive shard count is the bootstrap
// equivalent).
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.AOFPath == "" {
		return fmt.Errorf("config: aof path must not be empty")
	}
	if c.ShardsPerDB < 1 {
		return fmt.Errorf("config: shards per db must be >= 1, got %d", c.ShardsPerDB)
	}
	if c.ScriptWorkers < 1 {
		return fmt.Errorf("config: script workers must be >= 1, got %d", c.ScriptWorkers)
	}
	switch c.EvictionPolicy {
	case "lru", "lfu", "2q":
	default:
		return fmt.Errorf("config: unknown eviction policy %q (use lru, lfu, or 2q)", c.EvictionPolicy)
	}
	return nil
}
