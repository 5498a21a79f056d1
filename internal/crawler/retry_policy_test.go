package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type refusedErr struct{}

func (refusedErr) Error() string   { return "refused" }
func (refusedErr) Timeout() bool   { return false }
func (refusedErr) Temporary() bool { return false }

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{MaxAttempts: 3})
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.True(t, p.ShouldRetry(errors.New("boom"), 2))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 3), "attempt budget exhausted")
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.True(t, p.ShouldRetry(fmt.Errorf("nav: %w", context.DeadlineExceeded), 1), "per-attempt timeouts are transient")
	assert.False(t, p.ShouldRetry(fmt.Errorf("discover: %w", ErrBlocked), 1))
	assert.False(t, p.ShouldRetry(Permanent(errors.New("404")), 1))
	assert.False(t, p.ShouldRetry(fmt.Errorf("img: %w", ErrTooLarge), 1))
	assert.True(t, p.ShouldRetry(timeoutErr{}, 1))
	assert.False(t, p.ShouldRetry(refusedErr{}, 1))
}

func TestRetryPolicyBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{BaseDelay: time.Second, MaxDelay: 8 * time.Second, DisableJitter: true})
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
	assert.Equal(t, 8*time.Second, p.Backoff(10))

	jittered := NewRetryPolicy(RetryConfig{BaseDelay: time.Second, MaxDelay: 8 * time.Second})
	for attempt := 1; attempt <= 5; attempt++ {
		d := jittered.Backoff(attempt)
		assert.LessOrEqual(t, d, 8*time.Second)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	}
}

func TestNewExponentialRetryPolicyDefaults(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy()
	require.Equal(t, 3, p.MaxAttempts())
}

func TestRetryStopsAfterSuccess(t *testing.T) {
	t.Parallel()

	rec := &recordingPauser{}
	var retries []int
	calls := 0
	err := Retry(context.Background(), NewRetryPolicy(RetryConfig{DisableJitter: true}), rec,
		func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retries)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestRetryReturnsLastErrorOnExhaustion(t *testing.T) {
	t.Parallel()

	calls := 0
	sentinel := errors.New("still failing")
	err := Retry(context.Background(), NewRetryPolicy(RetryConfig{MaxAttempts: 2}), &recordingPauser{}, nil,
		func(context.Context) error {
			calls++
			return sentinel
		})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 2, calls)
}

func TestRetryNeverRetriesBlocked(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), NewExponentialRetryPolicy(), &recordingPauser{}, nil,
		func(context.Context) error {
			calls++
			return ErrBlocked
		})
	require.ErrorIs(t, err, ErrBlocked)
	require.Equal(t, 1, calls)
}

func TestRetryAbortsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, NewExponentialRetryPolicy(), &recordingPauser{}, nil,
		func(context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindSuccess, Classify(nil))
	assert.Equal(t, KindBlocked, Classify(fmt.Errorf("x: %w", ErrBlocked)))
	assert.Equal(t, KindNotFound, Classify(ErrNotFound))
	assert.Equal(t, KindTransient, Classify(errors.New("timeout")))
	assert.Equal(t, "blocked", KindBlocked.String())
}
