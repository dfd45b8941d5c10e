package config

import "time"

// UDFConfig configures interpreted filter functions.
type UDFConfig struct {
	// Standard library packages a filter may import.
	AllowedPackages []string `yaml:"allowed_packages"`
	// Per-call evaluation budget, as a Go duration string.
	Timeout string `yaml:"timeout"`
}

// GetTimeout parses Timeout, falling back to one second when unset.
func (c UDFConfig) GetTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return time.Second, nil
	}
	return time.ParseDuration(c.Timeout)
}
