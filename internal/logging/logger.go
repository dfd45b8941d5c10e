// Package logging builds the zap loggers used across kgraph.
// Each subsystem logs under a category; categories can be switched off in
// configuration without touching the rest of the output.
package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"kgraph/internal/config"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // CLI startup, config loading
	CategoryKernel    Category = "kernel"    // Knowledge graph mutations
	CategoryInference Category = "inference" // Fixpoint rounds
	CategoryRepair    Category = "repair"    // Constraint witnesses and retractions
	CategoryQuery     Category = "query"     // Query execution
	CategoryStream    Category = "stream"    // Window evaluation
	CategoryIngest    Category = "ingest"    // Stream file readers
	CategoryProgram   Category = "program"   // Program file loading, UDF compilation
	CategoryMangle    Category = "mangle"    // Datalog cross-check
	CategoryExport    Category = "export"    // Snapshot writers
)

// New builds the root logger from configuration.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if cfg.DebugMode {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Set hands out per-category loggers that honor the category toggles.
// A nil *Set is valid and logs nothing.
type Set struct {
	base *zap.Logger
	cfg  config.LoggingConfig
}

// NewSet wraps base with the category configuration.
func NewSet(base *zap.Logger, cfg config.LoggingConfig) *Set {
	return &Set{base: base, cfg: cfg}
}

// Nop returns a set whose loggers discard everything.
func Nop() *Set {
	return &Set{base: zap.NewNop()}
}

// Get returns the logger for a category.
func (s *Set) Get(category Category) *zap.Logger {
	if s == nil || s.base == nil {
		return zap.NewNop()
	}
	if !s.cfg.IsCategoryEnabled(string(category)) {
		return zap.NewNop()
	}
	return s.base.Named(string(category))
}

// Base returns the uncategorized root logger.
func (s *Set) Base() *zap.Logger {
	if s == nil || s.base == nil {
		return zap.NewNop()
	}
	return s.base
}

// Timer helps measure operation duration
type Timer struct {
	logger *zap.Logger
	op     string
	start  time.Time
}

// StartTimer begins timing an operation
func StartTimer(logger *zap.Logger, operation string) *Timer {
	return &Timer{
		logger: logger,
		op:     operation,
		start:  time.Now(),
	}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		t.logger.Warn("operation slow",
			zap.String("op", t.op),
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		t.logger.Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
