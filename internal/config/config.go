// Package config holds all flakewatch configuration.
// Every heuristic threshold used by the analyzers and the verification loop
// lives here rather than as a literal in the code, so deployments can tune
// them against their own measured baselines.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DurationRange is the expected wall-clock envelope, in seconds, for one
// test category. A genuine execution of that category should land inside it.
type DurationRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Thresholds collects the tunable heuristic constants.
type Thresholds struct {
	// FastRatio: an observed duration below FastRatio * expected minimum is
	// flagged as suspiciously fast.
	FastRatio float64 `yaml:"fast_ratio"`

	// FakeCutoff: executions faster than this (seconds) count as fake in the
	// loop-level confidence computation.
	FakeCutoff float64 `yaml:"fake_cutoff"`

	// ConfidenceGate: a verification loop stops early once its aggregate
	// confidence (0-100) reaches this value.
	ConfidenceGate float64 `yaml:"confidence_gate"`

	// RegressionRatio: a test's recent mean duration above
	// RegressionRatio * lifetime mean marks a performance regression.
	RegressionRatio float64 `yaml:"regression_ratio"`

	// MaxLoops bounds the verification pass.
	MaxLoops int `yaml:"max_loops"`

	// HoneypotSuffix marks always-fail honeypot tests, in addition to the
	// literal "honeypot" substring convention.
	HoneypotSuffix string `yaml:"honeypot_suffix"`
}

// Config is the top-level flakewatch configuration.
type Config struct {
	// StorageDir holds test_history.json and flaky_tests.json.
	StorageDir string `yaml:"storage_dir"`

	// ArchivePath is the SQLite cold archive. Empty disables archival.
	ArchivePath string `yaml:"archive_path"`

	// Categories maps a test's declared category to its expected duration
	// envelope.
	Categories map[string]DurationRange `yaml:"categories"`

	Thresholds Thresholds `yaml:"thresholds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StorageDir:  ".flakewatch",
		ArchivePath: "",
		Categories: map[string]DurationRange{
			"database_query":     {Min: 0.01, Max: 5.0},
			"api_call":           {Min: 0.05, Max: 30.0},
			"file_io":            {Min: 0.001, Max: 10.0},
			"integration":        {Min: 0.1, Max: 120.0},
			"browser_automation": {Min: 1.0, Max: 60.0},
		},
		Thresholds: Thresholds{
			FastRatio:       0.5,
			FakeCutoff:      0.001,
			ConfidenceGate:  90.0,
			RegressionRatio: 1.5,
			MaxLoops:        3,
			HoneypotSuffix:  ".H",
		},
	}
}

// DefaultRange is the envelope used for categories with no configured range.
// Wide on purpose: unknown categories should not generate duration noise.
var DefaultRange = DurationRange{Min: 0.0001, Max: 300.0}

// Range resolves a category to its duration envelope.
func (c *Config) Range(category string) DurationRange {
	if r, ok := c.Categories[category]; ok {
		return r
	}
	return DefaultRange
}

// Load reads a YAML config file, overlaying it on the defaults so absent
// fields keep their built-in values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects configurations the analyzers cannot work with.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	for name, r := range c.Categories {
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("category %q: negative duration range", name)
		}
		if r.Max > 0 && r.Min > r.Max {
			return fmt.Errorf("category %q: min %.4f exceeds max %.4f", name, r.Min, r.Max)
		}
	}
	t := c.Thresholds
	if t.FastRatio <= 0 || t.FastRatio > 1 {
		return fmt.Errorf("fast_ratio must be in (0, 1], got %.3f", t.FastRatio)
	}
	if t.FakeCutoff < 0 {
		return fmt.Errorf("fake_cutoff must be non-negative, got %.6f", t.FakeCutoff)
	}
	if t.ConfidenceGate < 0 || t.ConfidenceGate > 100 {
		return fmt.Errorf("confidence_gate must be in [0, 100], got %.1f", t.ConfidenceGate)
	}
	if t.RegressionRatio <= 1 {
		return fmt.Errorf("regression_ratio must exceed 1, got %.3f", t.RegressionRatio)
	}
	if t.MaxLoops <= 0 {
		return fmt.Errorf("max_loops must be positive, got %d", t.MaxLoops)
	}
	return nil
}
