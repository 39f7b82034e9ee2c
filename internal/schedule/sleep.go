package schedule

import (
	"context"
	"time"
)

// Sleep granularity bands. Far out we take big steps so a days-long wait
// costs nothing; inside the last second we converge in 1ms steps, which
// lands the wakeup within single-digit milliseconds of the target.
const (
	coarseStepMax = 5 * time.Minute
	coarseBand    = time.Minute
	fineBand      = time.Second
	spinStep      = time.Millisecond
)

// SleepUntil blocks until target, layering coarse, fine and sub-second
// waits. It returns the observed skew: how far past the target the wakeup
// landed. A target already in the past returns immediately with the
// elapsed overshoot.
func SleepUntil(ctx context.Context, target time.Time) (time.Duration, error) {
	for {
		d := time.Until(target)
		switch {
		case d <= 0:
			return -d, nil
		case d > coarseBand:
			step := d - coarseBand
			if step > coarseStepMax {
				step = coarseStepMax
			}
			if err := sleep(ctx, step); err != nil {
				return 0, err
			}
		case d > fineBand:
			if err := sleep(ctx, d-fineBand); err != nil {
				return 0, err
			}
		default:
			step := d
			if step > spinStep {
				step = spinStep
			}
			if err := sleep(ctx, step); err != nil {
				return 0, err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
