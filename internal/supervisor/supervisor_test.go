package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purefinance/mmb/internal/logging"
)

func TestRunReturnsNilOnContextCancel(t *testing.T) {
	s := New(logging.Noop{})
	s.Add(RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Run(ctx)
	assert.NoError(t, err)
}

func TestRunPropagatesRunnerError(t *testing.T) {
	boom := errors.New("boom")
	s := New(logging.Noop{})
	s.Add(RunnerFunc(func(ctx context.Context) error {
		return boom
	}))
	s.Add(RunnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
