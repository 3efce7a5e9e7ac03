package enforce

import (
	"context"
	"fmt"
	"time"

	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/state"
)

// Guard runs Enforce under a deadline. If the call does not complete before
// timeout or ctx is done, Guard records a timeout fault and returns Deny.
// Observers see exactly one decision per call. The abandoned evaluation
// still finishes in the background and its rule entries still reach the
// journal, but its decision is dropped.
func (e *Engine) Guard(ctx context.Context, timeout time.Duration, cp policy.Checkpoint, st *state.SystemState) Decision {
	if timeout <= 0 {
		return e.EnforceContext(ctx, cp, st)
	}

	start := e.now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Decision, 1)
	go func() {
		done <- e.traced(ctx, cp, st, false)
	}()

	select {
	case d := <-done:
		e.notify(d, st)
		return d
	case <-ctx.Done():
		d := e.fault(Decision{Checkpoint: cp}, &FaultError{
			Kind:  FaultTimeout,
			Cause: fmt.Errorf("%w: %v", ErrDeadline, context.Cause(ctx)),
		})
		d.Time = start
		d.Duration = e.now().Sub(start)
		e.notify(d, st)
		return d
	}
}
