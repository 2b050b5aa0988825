// Package task runs workflow steps off the caller's goroutine, one at a time,
// with cooperative cancellation and ordered progress delivery.
package task

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrBusy         = errors.New("task: another job is still running")
	ErrNoActiveTask = errors.New("task: no active job")
	ErrClosed       = errors.New("task: orchestrator is shut down")
)

// State is the lifecycle position of a job.
//
// Lifecycle: running -> completed | cancelled | failed
type State int32

const (
	StateRunning State = iota
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s != StateRunning
}

// Outcome is the terminal result of a job. Value carries the count the job
// reached, also when it was cancelled; Err is set only for StateFailed and is
// the job's error as returned.
type Outcome struct {
	State State
	Value int
	Err   error
}

// Control is handed to a job body. Cancelled must be polled between units of
// work; Progress publishes the number of units done so far.
type Control interface {
	Cancelled() bool
	Progress(n int)
}

// Job is the body of a background job.
type Job func(ctl Control) (int, error)

// Handle tracks one submitted job.
type Handle struct {
	ID   string
	Name string

	cancelled atomic.Bool
	progress  atomic.Int64
	state     atomic.Int32
	outcome   Outcome
	done      chan struct{}
}

func newHandle(id, name string) *Handle {
	return &Handle{ID: id, Name: name, done: make(chan struct{})}
}

// Cancel requests cooperative cancellation. The job finishes the unit it is
// working on before it stops.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Progress returns the last progress value the job published.
func (h *Handle) Progress() int {
	return int(h.progress.Load())
}

func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed after the completion callback has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the terminal outcome. It is only meaningful after Done.
func (h *Handle) Outcome() Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return Outcome{State: StateRunning, Value: h.Progress()}
	}
}

// Wait blocks until the job is done or ctx expires.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
