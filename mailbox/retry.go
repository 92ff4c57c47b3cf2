package mailbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/benbuzz790/llm-utilities/model"
)

var (
	// ErrRetryExhausted matches a send that kept failing transiently until
	// the attempt bound was reached.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrCancelled matches a send abandoned because its context ended.
	ErrCancelled = errors.New("delivery cancelled")
)

// RetryPolicy controls the transient failure retry loop.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts per send, including the first
	BaseDelay   time.Duration // Delay before the second attempt, doubled each time
	MaxJitter   time.Duration // Upper bound of the uniform jitter added to each delay
	MaxDelay    time.Duration // Cap on a single delay, zero for none
}

// DefaultRetryPolicy returns 25 attempts starting at one second with up to
// one second of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 25,
		BaseDelay:   time.Second,
		MaxJitter:   time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	return p
}

// RetryExhaustedError reports the last transient failure together with the
// payload that could not be delivered.
type RetryExhaustedError struct {
	Attempts int
	Payload  *model.Request
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("mailbox: gave up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last provider error.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// Is makes errors.Is match ErrRetryExhausted.
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// CancelledError carries the context cause of an abandoned send.
type CancelledError struct {
	Attempts int
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("mailbox: delivery cancelled after %d attempts: %v", e.Attempts, e.Cause)
}

// Unwrap returns the context cause.
func (e *CancelledError) Unwrap() error { return e.Cause }

// Is makes errors.Is match ErrCancelled.
func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// exponentialJitter yields BaseDelay·2^n plus uniform jitter, capped at
// MaxDelay. A provider hint, when larger, replaces the computed delay once.
type exponentialJitter struct {
	policy  RetryPolicy
	attempt int
	hint    time.Duration
	jitter  func(max time.Duration) time.Duration
}

func newExponentialJitter(p RetryPolicy) *exponentialJitter {
	return &exponentialJitter{policy: p, jitter: uniformJitter}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// NextBackOff implements backoff.BackOff.
func (b *exponentialJitter) NextBackOff() time.Duration {
	n := b.attempt
	b.attempt++

	delay := b.policy.BaseDelay
	for i := 0; i < n && delay > 0; i++ {
		if b.policy.MaxDelay > 0 && delay >= b.policy.MaxDelay {
			break
		}
		if delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
	}
	delay += b.jitter(b.policy.MaxJitter)
	if b.policy.MaxDelay > 0 && delay > b.policy.MaxDelay {
		delay = b.policy.MaxDelay
	}

	if b.hint > delay {
		delay = b.hint
	}
	b.hint = 0
	return delay
}

// Reset implements backoff.BackOff.
func (b *exponentialJitter) Reset() {
	b.attempt = 0
	b.hint = 0
}

// attemptFunc performs one provider call.
type attemptFunc func(ctx context.Context) (*model.Response, error)

// retryObserver is told about every failed attempt.
type retryObserver func(attempt int, err error, next time.Duration)

// sendWithRetry runs fn until it succeeds, fails fatally, exhausts the
// policy or ctx ends. It returns the response and the number of attempts.
func sendWithRetry(ctx context.Context, policy RetryPolicy, fn attemptFunc, observe retryObserver) (*model.Response, int, error) {
	policy = policy.withDefaults()
	bo := newExponentialJitter(policy)

	var (
		attempts int
		lastErr  error
	)

	op := func() (*model.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		attempts++
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !model.IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		bo.hint = model.RetryAfter(err)
		return nil, err
	}

	notify := func(err error, next time.Duration) {
		if observe != nil {
			observe(attempts, err, next)
		}
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return resp, attempts, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, attempts, &CancelledError{Attempts: attempts, Cause: context.Cause(ctx)}
	}
	if lastErr != nil && model.IsTransient(lastErr) && attempts >= policy.MaxAttempts {
		return nil, attempts, &RetryExhaustedError{Attempts: attempts, Err: lastErr}
	}
	// MaxTries is checked before Permanent is unwrapped on the last attempt.
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return nil, attempts, perm.Unwrap()
	}
	return nil, attempts, err
}
