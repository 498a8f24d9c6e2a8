package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errFatal = errors.New("fatal")

func TestDoSucceedsEventually(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
		func(e error) bool { return errors.Is(e, errTransient) },
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errTransient
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnFatal(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultPolicy,
		func(e error) bool { return errors.Is(e, errTransient) },
		func(ctx context.Context) error {
			attempts++
			return errFatal
		})
	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		func(e error) bool { return true },
		func(ctx context.Context) error {
			attempts++
			return errTransient
		})
	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 2, attempts)
}
