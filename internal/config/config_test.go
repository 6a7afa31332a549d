package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Thresholds.FastRatio)
	assert.Equal(t, 0.001, cfg.Thresholds.FakeCutoff)
	assert.Equal(t, 90.0, cfg.Thresholds.ConfidenceGate)
	assert.Equal(t, 1.5, cfg.Thresholds.RegressionRatio)
	assert.Equal(t, 3, cfg.Thresholds.MaxLoops)
	assert.Equal(t, ".H", cfg.Thresholds.HoneypotSuffix)
	assert.Contains(t, cfg.Categories, "database_query")
	assert.Contains(t, cfg.Categories, "browser_automation")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := `
storage_dir: /var/lib/flakewatch
thresholds:
  confidence_gate: 80
`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Explicit fields applied.
	assert.Equal(t, "/var/lib/flakewatch", cfg.StorageDir)
	assert.Equal(t, 80.0, cfg.Thresholds.ConfidenceGate)

	// Absent fields keep defaults.
	assert.Equal(t, 0.5, cfg.Thresholds.FastRatio)
	assert.Equal(t, 3, cfg.Thresholds.MaxLoops)
	assert.Contains(t, cfg.Categories, "api_call")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.StorageDir = "history"
	cfg.ArchivePath = "cold.db"
	cfg.Categories["custom"] = DurationRange{Min: 0.2, Max: 2.0}
	cfg.Thresholds.RegressionRatio = 2.0
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.StorageDir, loaded.StorageDir)
	assert.Equal(t, cfg.ArchivePath, loaded.ArchivePath)
	assert.Equal(t, cfg.Thresholds, loaded.Thresholds)
	assert.Equal(t, DurationRange{Min: 0.2, Max: 2.0}, loaded.Categories["custom"])
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty storage dir", func(c *Config) { c.StorageDir = "" }},
		{"zero fast ratio", func(c *Config) { c.Thresholds.FastRatio = 0 }},
		{"negative fake cutoff", func(c *Config) { c.Thresholds.FakeCutoff = -1 }},
		{"gate above 100", func(c *Config) { c.Thresholds.ConfidenceGate = 150 }},
		{"regression ratio at 1", func(c *Config) { c.Thresholds.RegressionRatio = 1.0 }},
		{"zero loops", func(c *Config) { c.Thresholds.MaxLoops = 0 }},
		{"inverted range", func(c *Config) { c.Categories["x"] = DurationRange{Min: 5, Max: 1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRangeFallsBackForUnknownCategory(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultRange, cfg.Range("never-configured"))
	assert.Equal(t, cfg.Categories["file_io"], cfg.Range("file_io"))
}
