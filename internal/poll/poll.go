// Package poll repeats a check against an eventually consistent store
// until it succeeds or a wall-clock ceiling elapses.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is matched by every TimeoutError via errors.Is.
var ErrTimeout = errors.New("poll: ceiling elapsed")

// TimeoutError reports a poll that never observed a positive check
// before its ceiling.
type TimeoutError struct {
	Ceiling  time.Duration
	Elapsed  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"timed out after %s (ceiling %s, %d attempts)",
		e.Elapsed.Round(time.Millisecond), e.Ceiling, e.Attempts,
	)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// IsTimeout reports whether err (or any error in its chain) is a poll timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Options controls the polling cadence.
type Options struct {
	// Interval is the pause between two attempts.
	Interval time.Duration

	// Ceiling bounds the wall-clock time measured from the first attempt.
	Ceiling time.Duration

	// Now and Sleep default to the real clock. Sleep must return early
	// with ctx.Err() when ctx is done.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Until runs check until it reports success, returns an error, ctx is
// done, or the ceiling elapses. check returns the value and true when
// the awaited state is observed; a non-nil error stops polling at once.
// A success observed at or after the ceiling is reported as a timeout.
func Until[T any](
	ctx context.Context,
	opts Options,
	check func(ctx context.Context, attempt int) (T, bool, error),
) (T, error) {
	var zero T

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	start := now()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, ok, err := check(ctx, attempt)
		if err != nil {
			return zero, err
		}

		elapsed := now().Sub(start)
		if elapsed >= opts.Ceiling {
			return zero, &TimeoutError{Ceiling: opts.Ceiling, Elapsed: elapsed, Attempts: attempt}
		}
		if ok {
			return value, nil
		}

		wait := opts.Interval
		if remaining := opts.Ceiling - elapsed; remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
