package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Orchestrator runs at most one job at a time. Progress and completion
// callbacks are delivered on a single dispatch goroutine, in the order the job
// emitted them, the completion callback last and exactly once.
type Orchestrator struct {
	logger *slog.Logger

	mu     sync.Mutex // serializes Submit against Shutdown
	busy   atomic.Bool
	active atomic.Pointer[Handle]
	closed bool

	events chan func()
	quit   chan struct{}
	wg     sync.WaitGroup
}

func New(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		logger: logger,
		events: make(chan func(), 256),
		quit:   make(chan struct{}),
	}
	o.wg.Add(1)
	go o.dispatch()
	return o
}

func (o *Orchestrator) dispatch() {
	defer o.wg.Done()
	for {
		select {
		case fn := <-o.events:
			o.guard(fn)
		case <-o.quit:
			return
		}
	}
}

// Submit starts job on its own goroutine. It fails with ErrBusy while a
// previous job has not reached its terminal callback.
func (o *Orchestrator) Submit(name string, job Job, onProgress func(int), onComplete func(Outcome)) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	h := newHandle(uuid.NewString(), name)
	o.active.Store(h)
	o.logger.Info("task: started", "task", name, "id", h.ID)

	go o.run(h, job, onProgress, onComplete)
	return h, nil
}

// Active returns the running job, or nil.
func (o *Orchestrator) Active() *Handle {
	return o.active.Load()
}

// Cancel requests cancellation of the running job.
func (o *Orchestrator) Cancel() error {
	h := o.active.Load()
	if h == nil {
		return ErrNoActiveTask
	}
	h.Cancel()
	o.logger.Info("task: cancellation requested", "task", h.Name, "id", h.ID)
	return nil
}

// Shutdown cancels the running job, waits for its completion callback and
// stops the dispatch goroutine.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	h := o.active.Load()
	o.mu.Unlock()

	if h != nil {
		h.Cancel()
		select {
		case <-h.Done():
		case <-ctx.Done():
			return fmt.Errorf("task: waiting for %q: %w", h.Name, ctx.Err())
		}
	}
	close(o.quit)
	o.wg.Wait()
	return nil
}

type control struct {
	o          *Orchestrator
	h          *Handle
	onProgress func(int)
}

func (c *control) Cancelled() bool {
	return c.h.cancelled.Load()
}

func (c *control) Progress(n int) {
	for {
		cur := c.h.progress.Load()
		if int64(n) <= cur || c.h.progress.CompareAndSwap(cur, int64(n)) {
			break
		}
	}
	if c.onProgress != nil {
		fn := c.onProgress
		c.o.events <- func() { fn(n) }
	}
}

func (o *Orchestrator) run(h *Handle, job Job, onProgress func(int), onComplete func(Outcome)) {
	value, err := execute(h, job, &control{o: o, h: h, onProgress: onProgress})

	out := Outcome{Value: value}
	switch {
	case err != nil:
		out.State = StateFailed
		out.Err = err
		o.logger.Error("task: failed", "task", h.Name, "id", h.ID, "value", value, "err", err)
	case h.cancelled.Load():
		out.State = StateCancelled
		o.logger.Info("task: cancelled by user", "task", h.Name, "id", h.ID, "value", value)
	default:
		out.State = StateCompleted
		o.logger.Info("task: completed", "task", h.Name, "id", h.ID, "value", value)
	}

	o.events <- func() {
		h.outcome = out
		h.state.Store(int32(out.State))
		o.active.CompareAndSwap(h, nil)
		o.busy.Store(false)

		o.complete(h, onComplete, out)
		close(h.done)
	}
}

func (o *Orchestrator) complete(h *Handle, onComplete func(Outcome), out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("task: completion callback panicked", "task", h.Name, "id", h.ID, "panic", r)
		}
	}()
	if onComplete != nil {
		onComplete(out)
	}
}

// guard keeps a panicking progress callback from stopping the dispatch goroutine.
func (o *Orchestrator) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("task: callback panicked", "panic", r)
		}
	}()
	fn()
}

// execute runs the job body and turns a panic into an error.
func execute(h *Handle, job Job, ctl Control) (value int, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = h.Progress()
			err = fmt.Errorf("task: %s panicked: %v", h.Name, r)
		}
	}()
	return job(ctl)
}
