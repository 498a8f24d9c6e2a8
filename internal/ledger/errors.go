package ledger

import "errors"

var (
	// ErrInsufficientBalance is returned when a reservation exceeds the free balance.
	ErrInsufficientBalance = errors.New("insufficient free balance")
	// ErrOverRelease is returned when a release or settle exceeds the bucket's held amount.
	ErrOverRelease = errors.New("release exceeds reserved amount")
	// ErrAllocationExceeded is returned when a reservation would exceed the
	// requesting bucket's configured allocation of a balance, even though the
	// balance's global free amount could otherwise cover it.
	ErrAllocationExceeded = errors.New("bucket allocation exceeded")
)
