// Package apperrors defines the sentinel errors exchange adapters and core
// components classify their failures into, plus predicates that report
// which class a failure belongs to. No other package calls the predicates.
package apperrors

import "errors"

var (
	// ErrInsufficientFunds indicates the exchange rejected an order because
	// the account lacks the balance to cover it.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOrderRejected indicates the exchange rejected an order for a reason
	// other than funds, rate limits, or parameter validation.
	ErrOrderRejected = errors.New("order rejected by exchange")
	// ErrRateLimitExceeded indicates the exchange's rate limiter returned a
	// 429 or equivalent; the caller should back off and retry.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrNetwork indicates a transport-level failure: timeout, connection
	// reset, DNS failure. Always transient.
	ErrNetwork = errors.New("network error")
	// ErrInvalidSymbol indicates the exchange does not recognize the symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrAuthenticationFailed indicates a signing or API-key failure.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrExchangeMaintenance indicates the exchange is in scheduled
	// maintenance and rejecting all requests.
	ErrExchangeMaintenance = errors.New("exchange under maintenance")
	// ErrOrderNotFound indicates a cancel or query referenced an order the
	// exchange has no record of.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder indicates a client_order_id collision.
	ErrDuplicateOrder = errors.New("duplicate client order id")
	// ErrInvalidOrderParameter indicates a parameter (price, amount, side)
	// failed exchange-side validation.
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	// ErrSystemOverload indicates the exchange is shedding load.
	ErrSystemOverload = errors.New("exchange system overload")
	// ErrTimestampOutOfBounds indicates a signed request's timestamp fell
	// outside the exchange's acceptance window, usually a clock-skew symptom.
	ErrTimestampOutOfBounds = errors.New("timestamp out of bounds")
	// ErrUnknown wraps an exchange error this adapter could not classify.
	ErrUnknown = errors.New("unknown exchange error")
)

// IsTransient reports whether err is worth retrying without operator
// intervention: network blips, rate limits, momentary overload, and clock
// skew all resolve on their own or with a small backoff.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrSystemOverload),
		errors.Is(err, ErrTimestampOutOfBounds):
		return true
	default:
		return false
	}
}

// IsFatal reports whether err requires operator attention: it will not
// resolve by retrying and should stop the affected market rather than spin.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrInvalidSymbol),
		errors.Is(err, ErrInvalidOrderParameter):
		return true
	default:
		return false
	}
}

// IsRecoverableOrderState reports whether err reflects a state the lifecycle
// manager can reconcile by re-querying the exchange rather than treating the
// order as lost: not-found and duplicate both resolve via a GetOrder lookup.
func IsRecoverableOrderState(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrDuplicateOrder)
}
