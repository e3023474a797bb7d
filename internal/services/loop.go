package services

import (
	"context"
	"time"
)

// runEvery вызывает tick сразу и затем с заданным интервалом, пока контекст не отменен.
func runEvery(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
