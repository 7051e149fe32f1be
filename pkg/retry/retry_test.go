package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestDoSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Wait: time.Millisecond, MaxTries: 3}, func(context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoSuccessAfterRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Wait: time.Millisecond, MaxTries: 5}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Wait: time.Millisecond, MaxTries: 4}, func(context.Context) error {
		calls++
		return errBoom
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Do() error = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("Do() error does not wrap the operation error: %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want exactly MaxTries", calls)
	}
}

func TestDoTimeout(t *testing.T) {
	err := Do(context.Background(), Config{
		Wait:     20 * time.Millisecond,
		MaxTries: 1000,
		Timeout:  50 * time.Millisecond,
	}, func(context.Context) error {
		return errBoom
	})

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Do() error = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("Do() error does not wrap the operation error: %v", err)
	}
}

func TestDoNonRetryable(t *testing.T) {
	permanent := errors.New("bad metadata")
	calls := 0
	err := Do(context.Background(), Config{
		Wait:      time.Millisecond,
		MaxTries:  10,
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func(context.Context) error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("Do() error = %v, want the permanent error", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Errorf("non-retryable error should not be wrapped as exhaustion: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := Do(ctx, Config{Wait: time.Minute, MaxTries: 5}, func(context.Context) error {
		return errBoom
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want context.DeadlineExceeded", err)
	}
}
