package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all kgraph configuration.
type Config struct {
	// Inference engine settings
	Engine EngineConfig `yaml:"engine"`

	// Default window for continuous queries
	Stream StreamConfig `yaml:"stream"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Per-graph Prometheus counters
	Metrics MetricsConfig `yaml:"metrics"`

	// Interpreted filter functions in program files
	UDF UDFConfig `yaml:"udf"`

	// Snapshot export targets
	Export ExportConfig `yaml:"export"`
}

// MetricsConfig configures metric collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"omitempty,alphanum"`
}

// DefaultBaseIRI prefixes terms that are not already absolute IRIs in
// N-Triples output.
const DefaultBaseIRI = "http://kgraph.local/"

// ExportConfig configures snapshot exports.
type ExportConfig struct {
	SQLitePath   string `yaml:"sqlite_path"`
	NTriplesPath string `yaml:"ntriples_path"`
	IncludeRules bool   `yaml:"include_rules"`
	BaseIRI      string `yaml:"base_iri" validate:"omitempty,uri"`
}

// GetBaseIRI returns the configured base IRI with a default fallback.
func (c ExportConfig) GetBaseIRI() string {
	if c.BaseIRI != "" {
		return c.BaseIRI
	}
	return DefaultBaseIRI
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxIterations: 10000,
			Strategy:      StrategySemiNaive,
			Parallelism:   1,
			ProofDepth:    10,
		},
		Stream: StreamConfig{
			WindowSize: 100,
			Slide:      10,
			Operator:   "rstream",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "kgraph",
		},
		UDF: UDFConfig{
			AllowedPackages: []string{"strings", "strconv", "math", "regexp", "unicode"},
			Timeout:         "1s",
		},
		Export: ExportConfig{
			IncludeRules: true,
			BaseIRI:      DefaultBaseIRI,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
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

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KGRAPH_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.MaxIterations = n
		}
	}
	if v := os.Getenv("KGRAPH_STRATEGY"); v != "" {
		c.Engine.Strategy = v
	}
	if v := os.Getenv("KGRAPH_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.Parallelism = n
		}
	}
	if v := os.Getenv("KGRAPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KGRAPH_EXPORT_SQLITE"); v != "" {
		c.Export.SQLitePath = v
	}
	if v := os.Getenv("KGRAPH_BASE_IRI"); v != "" {
		c.Export.BaseIRI = v
	}
}

var validate = validator.New()

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.UDF.GetTimeout(); err != nil {
		return fmt.Errorf("invalid config: udf.timeout: %w", err)
	}
	return nil
}
