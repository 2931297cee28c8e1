package regfile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a poll exceeds its [Limit].
var ErrTimeout = errors.New("regfile: hardware timeout")

// Limit bounds a polling loop. The zero value polls forever without sleeping,
// which is what the hardware expects.
type Limit struct {
	// MaxPolls is the maximum number of condition evaluations. Zero means no limit.
	MaxPolls int
	// Timeout is the maximum wall time spent polling. Zero means no limit.
	Timeout time.Duration
	// Interval is slept between evaluations. Zero spins.
	Interval time.Duration
}

// Unbounded is the hardware-faithful poll limit.
var Unbounded = Limit{}

func (l Limit) String() string {
	if l == Unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("max=%d timeout=%s interval=%s", l.MaxPolls, l.Timeout, l.Interval)
}

// Until evaluates cond until it returns true, an error, or the limit or ctx
// expires. cond is evaluated at least once.
func Until(ctx context.Context, lim Limit, cond func() (bool, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var deadline time.Time
	if lim.Timeout > 0 {
		deadline = time.Now().Add(lim.Timeout)
	}

	for n := 1; ; n++ {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if lim.MaxPolls > 0 && n >= lim.MaxPolls {
			return fmt.Errorf("%w after %d polls", ErrTimeout, n)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrTimeout, lim.Timeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		default:
		}

		if lim.Interval > 0 {
			time.Sleep(lim.Interval)
		}
	}
}

// WaitSet polls until any bit in mask reads as set.
func (r Register) WaitSet(ctx context.Context, lim Limit, mask uint32) error {
	err := Until(ctx, lim, func() (bool, error) {
		return r.HasBits(mask)
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("waiting for %s & 0x%08X to set: %w", r, mask, err)
	}
	return err
}

// WaitClear polls until every bit in mask reads as clear.
func (r Register) WaitClear(ctx context.Context, lim Limit, mask uint32) error {
	err := Until(ctx, lim, func() (bool, error) {
		set, err := r.HasBits(mask)
		return !set, err
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("waiting for %s & 0x%08X to clear: %w", r, mask, err)
	}
	return err
}
