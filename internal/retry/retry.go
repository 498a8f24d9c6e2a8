// Package retry implements jittered exponential backoff for transient
// exchange and network failures.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy configures backoff bounds and attempt count.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a conservative default: 5 attempts, 200ms initial backoff
// doubling up to a 10s ceiling.
var DefaultPolicy = Policy{
	MaxAttempts:    5,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
}

// IsTransient classifies whether an error returned by fn should be retried.
type IsTransient func(error) bool

// Do runs fn up to policy.MaxAttempts times, sleeping a jittered exponential
// backoff between attempts as long as isTransient(err) is true. It returns
// the last error if every attempt fails, or nil as soon as fn succeeds. It
// returns immediately, without retrying, on a non-transient error or when ctx
// is canceled.
func Do(ctx context.Context, policy Policy, isTransient IsTransient, fn func(ctx context.Context) error) error {
	backoff := policy.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}
		jittered := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2+1)))
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(jittered):
		}
		backoff *= 2
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return lastErr
}
