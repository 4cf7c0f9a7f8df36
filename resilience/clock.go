package resilience

import (
	"context"
	"time"
)

// Clock supplies the current time. Configs default it to time.Now; tests
// substitute a fake to drive window and wait-duration math deterministically.
type Clock func() time.Time

// Sleeper abstracts the backoff wait between retry attempts so timing is
// verifiable without real delays.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// timerSleeper waits on a real timer, honoring context cancellation.
type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
