package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New()
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after retries", func(t *testing.T) {
		r := New(WithAttempts(3), WithBaseDelay(time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("fail after attempts exhausted", func(t *testing.T) {
		r := New(WithAttempts(2), WithBaseDelay(time.Millisecond))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		r := New(WithAttempts(5), WithBaseDelay(100*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, attempts, 3)
	})

	t.Run("retry hook sees attempt numbers and errors", func(t *testing.T) {
		var hookAttempts []int
		var hookErrs []error
		r := New(
			WithAttempts(2),
			WithBaseDelay(time.Millisecond),
			WithOnRetry(func(attempt int, err error) {
				hookAttempts = append(hookAttempts, attempt)
				hookErrs = append(hookErrs, err)
			}),
		)

		failure := errors.New("fail")
		_ = r.Do(context.Background(), func(ctx context.Context) error {
			return failure
		})
		assert.Equal(t, []int{1, 2}, hookAttempts)
		assert.Equal(t, []error{failure, failure}, hookErrs)
	})
}

func TestRetrier_DoWithData(t *testing.T) {
	r := New(WithAttempts(2), WithBaseDelay(time.Millisecond))

	attempts := 0
	result, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("fail")
		}
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}
