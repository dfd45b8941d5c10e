package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Engine.MaxIterations != 10000 {
		t.Errorf("expected MaxIterations=10000, got %d", cfg.Engine.MaxIterations)
	}
	if cfg.Engine.Strategy != StrategySemiNaive {
		t.Errorf("expected Strategy=%s, got %s", StrategySemiNaive, cfg.Engine.Strategy)
	}
	if cfg.Stream.WindowSize != 100 || cfg.Stream.Slide != 10 {
		t.Errorf("expected window 100/10, got %d/%d", cfg.Stream.WindowSize, cfg.Stream.Slide)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("KGRAPH_MAX_ITERATIONS", "")
	t.Setenv("KGRAPH_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "nested", "kgraph.yaml")

	cfg := DefaultConfig()
	cfg.Engine.MaxIterations = 42
	cfg.Engine.Strategy = StrategyNaive
	cfg.Logging.Categories = map[string]bool{"stream": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Engine.MaxIterations != 42 {
		t.Errorf("expected MaxIterations=42, got %d", loaded.Engine.MaxIterations)
	}
	if loaded.Engine.Strategy != StrategyNaive {
		t.Errorf("expected Strategy=naive, got %s", loaded.Engine.Strategy)
	}
	if loaded.Logging.IsCategoryEnabled("stream") {
		t.Error("expected stream category to be disabled")
	}
	if !loaded.Logging.IsCategoryEnabled("inference") {
		t.Error("expected unspecified category to be enabled")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxIterations != DefaultConfig().Engine.MaxIterations {
		t.Errorf("expected default MaxIterations, got %d", cfg.Engine.MaxIterations)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  parallelism: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Parallelism != 4 {
		t.Errorf("expected Parallelism=4, got %d", cfg.Engine.Parallelism)
	}
	if cfg.Engine.MaxIterations != 10000 {
		t.Errorf("expected MaxIterations default to survive, got %d", cfg.Engine.MaxIterations)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgraph.yaml")
	if err := os.WriteFile(path, []byte("engine: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("KGRAPH_MAX_ITERATIONS", "7")
	t.Setenv("KGRAPH_PARALLELISM", "3")
	t.Setenv("KGRAPH_LOG_LEVEL", "debug")
	t.Setenv("KGRAPH_STRATEGY", StrategyNaive)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxIterations != 7 {
		t.Errorf("expected MaxIterations=7, got %d", cfg.Engine.MaxIterations)
	}
	if cfg.Engine.Parallelism != 3 {
		t.Errorf("expected Parallelism=3, got %d", cfg.Engine.Parallelism)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected Level=debug, got %s", cfg.Logging.Level)
	}
	if cfg.Engine.Strategy != StrategyNaive {
		t.Errorf("expected Strategy=naive, got %s", cfg.Engine.Strategy)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Engine.MaxIterations = 0 }},
		{"unknown strategy", func(c *Config) { c.Engine.Strategy = "magic" }},
		{"zero parallelism", func(c *Config) { c.Engine.Parallelism = 0 }},
		{"zero window", func(c *Config) { c.Stream.WindowSize = 0 }},
		{"unknown operator", func(c *Config) { c.Stream.Operator = "xstream" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad udf timeout", func(c *Config) { c.UDF.Timeout = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestExportConfig_GetBaseIRI(t *testing.T) {
	if got := (ExportConfig{}).GetBaseIRI(); got != DefaultBaseIRI {
		t.Errorf("expected default base IRI, got %q", got)
	}
	if got := (ExportConfig{BaseIRI: "urn:kb:"}).GetBaseIRI(); got != "urn:kb:" {
		t.Errorf("expected configured base IRI, got %q", got)
	}

	cfg := DefaultConfig()
	cfg.Export.BaseIRI = "not a uri"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid base IRI to fail validation")
	}
}
