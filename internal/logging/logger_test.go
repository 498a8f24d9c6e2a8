package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsLoggerAtValidLevel(t *testing.T) {
	logger, err := New("debug")
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("hello", "key", "value")
	assert.NoError(t, logger.Sync())
}

func TestNewFallsBackToInfoOnInvalidLevel(t *testing.T) {
	logger, err := New("not-a-level")
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestWithReturnsLoggerCarryingFields(t *testing.T) {
	logger, err := New("info")
	require.NoError(t, err)

	scoped := logger.With("market", "BTCUSDT")
	require.NotNil(t, scoped)
	scoped.Warn("scoped warning")
}

func TestNoopSatisfiesLoggerInterface(t *testing.T) {
	var l Logger = Noop{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.NotNil(t, l.With("k", "v"))
}
