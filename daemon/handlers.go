package daemon

import (
	"context"
	"fmt"
	"time"
)

// ServiceHandler drives a service through its lifecycle. It reports every
// state it enters with updateState, sends lifecycle failures on errC and
// returns once the service reached StateExit.
type ServiceHandler interface {
	Handle(ctx context.Context, s Service, updateState func(name string, state State), errC chan<- ServiceError)
}

// RunContinuousHandler runs the service again after it stopped, until the
// context is cancelled. An error in Init or Idle goes to Stop.
//
// RestartDelay is the wait before going back to Init. When a cycle failed
// before reaching Run the wait doubles for the next cycle, up to
// MaxRestartDelay, and drops back to RestartDelay once Run is reached.
type RunContinuousHandler struct {
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
}

func (h RunContinuousHandler) Handle(ctx context.Context, s Service, updateState func(string, State), errC chan<- ServiceError) {
	delay := h.RestartDelay
	state := StateInit
	hasStopped := false
	failed := false

	for state != StateExit {
		if ctx.Err() != nil {
			break
		}
		updateState(s.Name, state)

		switch state {
		case StateInit:
			hasStopped = false
			if err := call(ctx, s.Runner.Init); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateInit, Err: err}
				failed = true
				state = StateStop
			} else {
				state = StateIdle
			}
		case StateIdle:
			if err := call(ctx, s.Runner.Idle); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateIdle, Err: err}
				failed = true
				state = StateStop
			} else {
				state = StateRun
			}
		case StateRun:
			failed = false
			delay = h.RestartDelay
			if err := call(ctx, s.Runner.Run); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateRun, Err: err}
			}
			state = StateStop
		case StateStop:
			if err := call(context.WithoutCancel(ctx), s.Runner.Stop); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateStop, Err: err}
			}
			hasStopped = true

			wait := delay
			if failed {
				delay = h.next(delay)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				state = StateExit
			case <-timer.C:
				state = StateInit
			}
		}
	}

	// ensuring stop is always run before exiting.
	if !hasStopped {
		updateState(s.Name, StateStop)
		if err := call(context.WithoutCancel(ctx), s.Runner.Stop); err != nil {
			errC <- ServiceError{Name: s.Name, State: StateStop, Err: err}
		}
	}
	updateState(s.Name, StateExit)
}

func (h RunContinuousHandler) next(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	delay *= 2
	if h.MaxRestartDelay > 0 && delay > h.MaxRestartDelay {
		return h.MaxRestartDelay
	}
	return delay
}

// RunOnceHandler runs the service once and exits regardless of any errors
// that may occur during the service lifecycle. Stop always runs.
type RunOnceHandler struct{}

func (h RunOnceHandler) Handle(ctx context.Context, s Service, updateState func(string, State), errC chan<- ServiceError) {
	state := StateInit

	for state != StateStop {
		if ctx.Err() != nil {
			break
		}
		updateState(s.Name, state)

		switch state {
		case StateInit:
			if err := call(ctx, s.Runner.Init); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateInit, Err: err}
				state = StateStop
			} else {
				state = StateIdle
			}
		case StateIdle:
			if err := call(ctx, s.Runner.Idle); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateIdle, Err: err}
				state = StateStop
			} else {
				state = StateRun
			}
		case StateRun:
			if err := call(ctx, s.Runner.Run); err != nil {
				errC <- ServiceError{Name: s.Name, State: StateRun, Err: err}
			}
			state = StateStop
		}
	}

	updateState(s.Name, StateStop)
	if err := call(context.WithoutCancel(ctx), s.Runner.Stop); err != nil {
		errC <- ServiceError{Name: s.Name, State: StateStop, Err: err}
	}
	updateState(s.Name, StateExit)
}

// call runs one lifecycle method, a panic in the runner becomes its error.
func call(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from a panic: %v", r)
		}
	}()
	return fn(ctx)
}
