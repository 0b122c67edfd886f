package util

import (
	"context"
	"time"
)

// SleepContext waits for d or until ctx is done, returning ctx.Err() in the
// latter case
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
