package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/rkv/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysJSONOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rkv.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":"0.0.0.0:7000","eviction_policy":"lfu"}`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7000", cfg.ListenAddr)
	require.Equal(t, "lfu", cfg.EvictionPolicy)
	// Fields absent from the JSON file keep their default value.
	require.Equal(t, config.Default().ShardsPerDB, cfg.ShardsPerDB)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadMalformedJSONErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*config.Config){
		func(c *config.Config) { c.ListenAddr = "" },
		func(c *config.Config) { c.AOFPath = "" },
		func(c *config.Config) { c.ShardsPerDB = 0 },
		func(c *config.Config) { c.ScriptWorkers = 0 },
		func(c *config.Config) { c.EvictionPolicy = "mru" },
	}
	for _, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		require.Error(t, cfg.Validate())
	}
}
