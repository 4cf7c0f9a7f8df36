package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Invalid(t *testing.T) {
	if _, err := NewTimeout(TimeoutConfig{Timeout: -time.Second}); err == nil {
		t.Error("NewTimeout() with negative timeout error = nil, want error")
	}
}

func TestTimeout_FastOperationPasses(t *testing.T) {
	guard, err := NewTimeout(TimeoutConfig{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewTimeout() error = %v", err)
	}

	v, err := RunTimeout(context.Background(), guard, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("RunTimeout() = %v, want nil", err)
	}
	if v != 42 {
		t.Errorf("RunTimeout() value = %d, want 42", v)
	}
}

func TestTimeout_SlowOperationTimesOut(t *testing.T) {
	guard, err := NewTimeout(TimeoutConfig{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTimeout() error = %v", err)
	}

	_, err = RunTimeout(context.Background(), guard, func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 1, nil
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("RunTimeout() = %v, want ErrTimeout", err)
	}
}

func TestTimeout_OperationErrorPassesThrough(t *testing.T) {
	guard, err := NewTimeout(TimeoutConfig{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewTimeout() error = %v", err)
	}

	boom := errors.New("boom")
	if err := guard.Run(context.Background(), func(ctx context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Errorf("Run() = %v, want %v", err, boom)
	}
}

func TestTimeout_ParentCancellation(t *testing.T) {
	guard, err := NewTimeout(TimeoutConfig{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewTimeout() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := RunTimeout(ctx, guard, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunTimeout() = %v, want context.Canceled", err)
		}
	}()
	cancel()
	<-done
}
