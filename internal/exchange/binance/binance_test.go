package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/purefinance/mmb/internal/lifecycle"
)

func TestMapOrderStatus(t *testing.T) {
	cases := map[string]lifecycle.State{
		"NEW":              lifecycle.StateCreated,
		"PARTIALLY_FILLED": lifecycle.StatePartiallyFilled,
		"FILLED":           lifecycle.StateFilled,
		"CANCELED":         lifecycle.StateCancelled,
		"PENDING_CANCEL":   lifecycle.StateCancelled,
		"REJECTED":         lifecycle.StateRejected,
		"EXPIRED":          lifecycle.StateExpired,
		"SOMETHING_ELSE":   lifecycle.StateUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, mapOrderStatus(status), "status %s", status)
	}
}

func TestSignPayloadIsDeterministicHMAC(t *testing.T) {
	sig1 := signPayload("secret", "timestamp=1000")
	sig2 := signPayload("secret", "timestamp=1000")
	sig3 := signPayload("other-secret", "timestamp=1000")

	assert.Equal(t, sig1, sig2)
	assert.NotEqual(t, sig1, sig3)
	assert.Len(t, sig1, 64) // hex-encoded SHA-256
}

func TestClassifyCreateErrorAlwaysRejectsLocally(t *testing.T) {
	ack := classifyCreateError(assertErr{})
	assert.False(t, ack.Accepted)
	assert.Equal(t, lifecycle.RejectReasonExchangeRejected, ack.RejectReason)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
