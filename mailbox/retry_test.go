package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/model"
)

func noJitter(b *exponentialJitter) *exponentialJitter {
	b.jitter = func(time.Duration) time.Duration { return 0 }
	return b
}

func TestExponentialJitterDoubles(t *testing.T) {
	b := noJitter(newExponentialJitter(RetryPolicy{BaseDelay: time.Second}))

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestExponentialJitterCap(t *testing.T) {
	b := noJitter(newExponentialJitter(RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}))
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, b.NextBackOff(), 3*time.Second)
	}
}

func TestExponentialJitterAddsBoundedJitter(t *testing.T) {
	b := newExponentialJitter(RetryPolicy{BaseDelay: time.Second, MaxJitter: time.Second})
	for i := 0; i < 50; i++ {
		b.Reset()
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	}
}

func TestExponentialJitterHonoursHint(t *testing.T) {
	b := noJitter(newExponentialJitter(RetryPolicy{BaseDelay: time.Millisecond}))
	b.hint = 5 * time.Second
	assert.Equal(t, 5*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Millisecond, b.NextBackOff())
}

func TestSendWithRetryReportsEachFailure(t *testing.T) {
	var seen []int
	fails := 2
	resp, attempts, err := sendWithRetry(context.Background(), RetryPolicy{MaxAttempts: 5},
		func(context.Context) (*model.Response, error) {
			if fails > 0 {
				fails--
				return nil, model.NewTransientError("mock", 503, errors.New("busy"))
			}
			return &model.Response{}, nil
		},
		func(n int, _ error, _ time.Duration) { seen = append(seen, n) },
	)
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestSendWithRetryFatalOnLastAttempt(t *testing.T) {
	fatal := model.NewFatalError("mock", 400, errors.New("bad request"))
	calls := 0
	_, attempts, err := sendWithRetry(context.Background(), RetryPolicy{MaxAttempts: 2},
		func(context.Context) (*model.Response, error) {
			calls++
			if calls == 1 {
				return nil, model.NewTransientError("mock", 503, errors.New("busy"))
			}
			return nil, fatal
		},
		nil,
	)
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Same(t, fatal, err)

	var perm *backoff.PermanentError
	assert.False(t, errors.As(err, &perm))
	assert.NotErrorIs(t, err, ErrRetryExhausted)
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	assert.Equal(t, 25, p.MaxAttempts)
	assert.Equal(t, DefaultRetryPolicy().BaseDelay, time.Second)
}
