package apperrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrNetwork))
	assert.True(t, IsTransient(ErrRateLimitExceeded))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", ErrSystemOverload)))
	assert.False(t, IsTransient(ErrAuthenticationFailed))
	assert.False(t, IsTransient(ErrOrderRejected))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrAuthenticationFailed))
	assert.True(t, IsFatal(ErrInvalidSymbol))
	assert.False(t, IsFatal(ErrNetwork))
}

func TestIsRecoverableOrderState(t *testing.T) {
	assert.True(t, IsRecoverableOrderState(ErrOrderNotFound))
	assert.True(t, IsRecoverableOrderState(ErrDuplicateOrder))
	assert.False(t, IsRecoverableOrderState(ErrNetwork))
}
