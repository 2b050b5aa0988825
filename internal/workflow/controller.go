// Package workflow drives the request-for-payment lifecycle: fetch the
// records, generate their documents, dispatch them. Each step runs as a
// background job on the task orchestrator while the controller keeps the
// record collection and reports progress to subscribers.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rfpdesk/internal/dispatch"
	"github.com/rfpdesk/internal/generation"
	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/settings"
	"github.com/rfpdesk/internal/task"
)

type Source interface {
	Fetch(ctx context.Context, from, to time.Time) ([]model.RequestRecord, error)
}

type Generator interface {
	Generate(ctx context.Context, store generation.Store, opts generation.Options, ctl task.Control) (int, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, records []model.RequestRecord, cfg dispatch.Config, ctl task.Control) (int, error)
}

type Journal interface {
	Append(ctx context.Context, e model.JournalEntry) (model.JournalEntry, error)
}

// Deps are the controller's collaborators. Journal may be nil.
type Deps struct {
	Tasks      *task.Orchestrator
	Records    *records.Store
	Settings   settings.Provider
	Source     Source
	Generator  Generator
	Dispatcher Dispatcher
	Journal    Journal
	Logger     *slog.Logger
}

type Controller struct {
	ctx        context.Context
	tasks      *task.Orchestrator
	records    *records.Store
	settings   settings.Provider
	source     Source
	generator  Generator
	dispatcher Dispatcher
	journal    Journal
	logger     *slog.Logger
	removeAll  func(string) error

	mu   sync.Mutex
	sent int
	last *Event
	hub  *hub
}

// New returns a controller whose jobs run under ctx.
func New(ctx context.Context, d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		ctx:        ctx,
		tasks:      d.Tasks,
		records:    d.Records,
		settings:   d.Settings,
		source:     d.Source,
		generator:  d.Generator,
		dispatcher: d.Dispatcher,
		journal:    d.Journal,
		logger:     logger,
		removeAll:  os.RemoveAll,
		hub:        newHub(),
	}
}

// Fetch replaces the collection with the records of the configured date
// range.
func (c *Controller) Fetch() (*task.Handle, error) {
	from, to := settings.DateRange(c.settings)
	return c.submit(model.JobFetch, dispatch.Config{}, func(ctl task.Control) (int, error) {
		recs, err := c.source.Fetch(c.ctx, from, to)
		if err != nil {
			return 0, err
		}
		if ctl.Cancelled() {
			return 0, nil
		}
		if err := c.records.ReplaceAll(recs); err != nil {
			return 0, err
		}
		c.setSent(0)
		ctl.Progress(len(recs))
		return len(recs), nil
	})
}

// Generate regenerates the documents of every selected record.
func (c *Controller) Generate() (*task.Handle, error) {
	if c.records.CountSelected() == 0 {
		return nil, generation.ErrNothingSelected
	}
	opts := generation.Options{
		Format:           settings.Format(c.settings),
		OutputFolder:     settings.Get(c.settings, settings.KeyOutputFolder),
		TempFolder:       settings.Get(c.settings, settings.KeyTempFolder),
		ModuleConfigPath: settings.Get(c.settings, settings.KeyModuleConfig),
	}
	return c.submit(model.JobGenerate, dispatch.Config{}, func(ctl task.Control) (int, error) {
		if opts.ModuleConfigPath == "" {
			return 0, generation.ErrModuleConfigNotDefined
		}
		c.records.ClearArtifacts()
		c.setSent(0)
		return c.generator.Generate(c.ctx, c.records, opts, ctl)
	})
}

// Dispatch delivers the generated documents of the selected records. The
// eligible set is taken now and does not change while the job runs.
func (c *Controller) Dispatch() (*task.Handle, error) {
	eligible := c.records.Eligible()
	if len(eligible) == 0 {
		return nil, dispatch.ErrNothingToDispatch
	}
	cfg := dispatch.Config{
		Channel:           settings.Channel(c.settings),
		Container:         settings.Container(c.settings),
		GatewayConfigPath: settings.Get(c.settings, settings.KeyGatewayConfig),
	}
	return c.submit(model.JobDispatch, cfg, func(ctl task.Control) (int, error) {
		n, err := c.dispatcher.Dispatch(c.ctx, eligible, cfg, ctl)
		if err == nil {
			c.setSent(n)
		}
		return n, err
	})
}

// Cancel asks the active job to stop at the next item boundary.
func (c *Controller) Cancel() error {
	return c.tasks.Cancel()
}

func (c *Controller) SetSelected(id string, selected bool) error {
	return c.records.SetSelected(id, selected)
}

func (c *Controller) SelectAll(selected bool) {
	c.records.SelectAll(selected)
}

// PurgeOutput deletes everything in the output folder and forgets the
// generated documents. It runs as a job so no other step can touch the
// collection or the folder meanwhile; the outcome value is the number of
// entries removed.
func (c *Controller) PurgeOutput() (*task.Handle, error) {
	dir := settings.Get(c.settings, settings.KeyOutputFolder)
	return c.submit(model.JobPurge, dispatch.Config{}, func(ctl task.Control) (int, error) {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}

		removed := 0
		for _, e := range entries {
			if err := c.removeAll(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("purge %s: %w", e.Name(), err)
			}
			removed++
			ctl.Progress(removed)
		}
		c.records.ClearArtifacts()
		c.setSent(0)
		c.logger.Info("workflow: output purged", "dir", dir, "removed", removed)
		return removed, nil
	})
}

func (c *Controller) setSent(n int) {
	c.mu.Lock()
	c.sent = n
	c.mu.Unlock()
}

func (c *Controller) submit(kind model.JobKind, cfg dispatch.Config, job task.Job) (*task.Handle, error) {
	started := time.Now()
	h, err := c.tasks.Submit(string(kind), job,
		func(n int) {
			c.hub.publish(Event{Type: EventProgress, Task: string(kind), Value: n})
		},
		func(out task.Outcome) {
			c.finish(kind, cfg, started, out)
		},
	)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (c *Controller) finish(kind model.JobKind, cfg dispatch.Config, started time.Time, out task.Outcome) {
	ev := Event{Type: EventType(out.State.String()), Task: string(kind), Value: out.Value}
	if out.Err != nil {
		ev.Error = out.Err.Error()
		ev.Category = classifyJob(kind, out.Err)
	}

	c.mu.Lock()
	c.last = &ev
	c.mu.Unlock()
	c.hub.publish(ev)

	if c.journal == nil {
		return
	}
	entry := model.JournalEntry{
		Kind:       kind,
		Count:      out.Value,
		State:      out.State.String(),
		Error:      ev.Error,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if kind == model.JobDispatch {
		entry.Channel = cfg.Channel
		entry.Container = cfg.Container
	}
	if _, err := c.journal.Append(context.WithoutCancel(c.ctx), entry); err != nil {
		c.logger.Error("workflow: journal append failed", "task", string(kind), "err", err)
	}
}
