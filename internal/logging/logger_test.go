package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"kgraph/internal/config"
)

func TestNewHonorsLevel(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json", File: filepath.Join(t.TempDir(), "k.log")})
	require.NoError(t, err)
	defer logger.Sync()

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewDebugModeOverridesLevel(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "error", DebugMode: true, File: filepath.Join(t.TempDir(), "k.log")})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestSetCategoryToggles(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	set := NewSet(zap.New(core), config.LoggingConfig{
		Categories: map[string]bool{string(CategoryStream): false},
	})

	set.Get(CategoryStream).Info("hidden")
	set.Get(CategoryInference).Info("shown")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
	assert.Equal(t, "inference", entries[0].LoggerName)
}

func TestNilSetIsSilent(t *testing.T) {
	var set *Set
	assert.NotPanics(t, func() {
		set.Get(CategoryKernel).Info("nothing")
		set.Base().Info("nothing")
	})
}

func TestTimer(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	timer := StartTimer(logger, "InferNewFacts")
	elapsed := timer.Stop()
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))

	slow := StartTimer(logger, "Repair")
	slow.StopWithThreshold(-time.Second)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "InferNewFacts", entries[0].ContextMap()["op"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
