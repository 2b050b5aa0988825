package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/internal/dispatch"
	"github.com/rfpdesk/internal/generation"
	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/settings"
	"github.com/rfpdesk/internal/task"
)

type fakeSource struct {
	recs []model.RequestRecord
	err  error
}

func (s *fakeSource) Fetch(context.Context, time.Time, time.Time) ([]model.RequestRecord, error) {
	return s.recs, s.err
}

// fakeGenerator attaches an artifact to every selected record.
type fakeGenerator struct {
	gate chan struct{}
	opts generation.Options
}

func (g *fakeGenerator) Generate(_ context.Context, store generation.Store, opts generation.Options, ctl task.Control) (int, error) {
	g.opts = opts
	if g.gate != nil {
		<-g.gate
	}
	n := 0
	for i := 0; ; i++ {
		rec, ok := store.At(i)
		if !ok {
			break
		}
		if !rec.Selected {
			continue
		}
		if err := store.Attach(rec.ID, model.GeneratedArtifact{PrimaryPath: rec.ID + ".pdf", Format: opts.Format}); err != nil {
			return n, err
		}
		n++
		ctl.Progress(n)
	}
	return n, nil
}

type fakeDispatcher struct {
	got []model.RequestRecord
	cfg dispatch.Config
	err error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, recs []model.RequestRecord, cfg dispatch.Config, ctl task.Control) (int, error) {
	d.got, d.cfg = recs, cfg
	if d.err != nil {
		return 0, d.err
	}
	ctl.Progress(len(recs))
	return len(recs), nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []model.JournalEntry
}

func (j *memJournal) Append(_ context.Context, e model.JournalEntry) (model.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return e, nil
}

type harness struct {
	ctl        *Controller
	source     *fakeSource
	generator  *fakeGenerator
	dispatcher *fakeDispatcher
	journal    *memJournal
	settings   settings.Static
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	recs := make([]model.RequestRecord, n)
	for i := range recs {
		recs[i] = model.RequestRecord{ID: fmt.Sprintf("rfp-%d", i+1), Selected: true}
	}
	h := &harness{
		source:     &fakeSource{recs: recs},
		generator:  &fakeGenerator{},
		dispatcher: &fakeDispatcher{},
		journal:    &memJournal{},
		settings: settings.Static{
			settings.KeyModuleConfig:  "smic.yaml",
			settings.KeyOutputFolder:  filepath.Join(t.TempDir(), "output"),
			settings.KeyOutputType:    settings.SendFilesystem,
			settings.KeyStartDate:     "2024-01-01",
			settings.KeyEndDate:       "2024-12-31",
			settings.KeyOutputFormat:  "XML",
			settings.KeyGatewayConfig: "smoc.yaml",
		},
	}
	orch := task.New(nil)
	t.Cleanup(func() { orch.Shutdown(context.Background()) })

	h.ctl = New(context.Background(), Deps{
		Tasks:      orch,
		Records:    records.NewStore(),
		Settings:   h.settings,
		Source:     h.source,
		Generator:  h.generator,
		Dispatcher: h.dispatcher,
		Journal:    h.journal,
	})
	return h
}

func wait(t *testing.T, h *task.Handle, err error) task.Outcome {
	t.Helper()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := h.Wait(ctx)
	require.NoError(t, err)
	return out
}

// waitOn adapts wait so a (*task.Handle, error) call can be passed directly.
func waitOn(t *testing.T) func(*task.Handle, error) task.Outcome {
	t.Helper()
	return func(h *task.Handle, err error) task.Outcome {
		t.Helper()
		return wait(t, h, err)
	}
}

func TestFullWorkflow(t *testing.T) {
	h := newHarness(t, 3)

	out := waitOn(t)(h.ctl.Fetch())
	assert.Equal(t, task.StateCompleted, out.State)
	assert.Equal(t, 3, out.Value)
	assert.True(t, h.ctl.Status().Steps.Fetched)

	require.NoError(t, h.ctl.SetSelected("rfp-2", false))

	out = waitOn(t)(h.ctl.Generate())
	assert.Equal(t, 2, out.Value)
	assert.Equal(t, model.FormatXML, h.generator.opts.Format)
	st := h.ctl.Status()
	assert.True(t, st.Steps.Generated)
	assert.False(t, st.Steps.Sent)

	out = waitOn(t)(h.ctl.Dispatch())
	assert.Equal(t, 2, out.Value)
	assert.Len(t, h.dispatcher.got, 2)
	assert.Equal(t, model.ChannelFilesystem, h.dispatcher.cfg.Channel)
	assert.Equal(t, model.ContainerUnit, h.dispatcher.cfg.Container)
	assert.Equal(t, "smoc.yaml", h.dispatcher.cfg.GatewayConfigPath)

	st = h.ctl.Status()
	assert.True(t, st.Steps.Sent)
	assert.Equal(t, 2, st.Sent)
	require.NotNil(t, st.Last)
	assert.Equal(t, EventCompleted, st.Last.Type)

	require.Len(t, h.journal.entries, 3)
	assert.Equal(t, model.JobDispatch, h.journal.entries[2].Kind)
	assert.Equal(t, model.ChannelFilesystem, h.journal.entries[2].Channel)
}

func TestGenerateRequiresSelection(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())
	h.ctl.SelectAll(false)

	_, err := h.ctl.Generate()
	assert.ErrorIs(t, err, generation.ErrNothingSelected)
	assert.Equal(t, CategoryPrecondition, Classify(err))
}

func TestGenerateWithoutModuleConfigKeepsArtifacts(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())
	waitOn(t)(h.ctl.Generate())
	delete(h.settings, settings.KeyModuleConfig)

	out := waitOn(t)(h.ctl.Generate())
	assert.Equal(t, task.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, generation.ErrModuleConfigNotDefined)
	assert.Equal(t, 2, h.ctl.Status().Generated)

	last := h.ctl.Status().Last
	require.NotNil(t, last)
	assert.Equal(t, CategoryConfiguration, last.Category)
}

func TestDispatchRequiresEligibleRecords(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())

	_, err := h.ctl.Dispatch()
	assert.ErrorIs(t, err, dispatch.ErrNothingToDispatch)
}

func TestDispatchFailureIsClassifiedAsTransport(t *testing.T) {
	h := newHarness(t, 1)
	h.dispatcher.err = errors.New("relay refused")
	waitOn(t)(h.ctl.Fetch())
	waitOn(t)(h.ctl.Generate())

	out := waitOn(t)(h.ctl.Dispatch())
	assert.Equal(t, task.StateFailed, out.State)
	assert.EqualError(t, out.Err, "relay refused")
	assert.Equal(t, CategoryTransport, h.ctl.Status().Last.Category)
	assert.Zero(t, h.ctl.Status().Sent)
}

func TestFetchRejectsDuplicateIDs(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())

	h.source.recs = append(h.source.recs, h.source.recs[0])
	out := waitOn(t)(h.ctl.Fetch())
	assert.Equal(t, task.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, records.ErrDuplicateID)
	assert.Equal(t, CategoryDataSource, h.ctl.Status().Last.Category)
	assert.Equal(t, 2, h.ctl.Status().Records)
}

func TestSecondJobIsRejectedWhileBusy(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())
	h.generator.gate = make(chan struct{})

	handle, err := h.ctl.Generate()
	require.NoError(t, err)

	_, err = h.ctl.Fetch()
	assert.ErrorIs(t, err, task.ErrBusy)
	_, err = h.ctl.PurgeOutput()
	assert.ErrorIs(t, err, task.ErrBusy)
	require.NotNil(t, h.ctl.Status().Active)

	close(h.generator.gate)
	wait(t, handle, nil)
	assert.Nil(t, h.ctl.Status().Active)
}

func TestSubscribeReceivesProgressThenTerminal(t *testing.T) {
	h := newHarness(t, 3)
	events, stop := h.ctl.Subscribe()
	defer stop()

	waitOn(t)(h.ctl.Fetch())

	var got []Event
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, Event{Type: EventProgress, Task: "fetch", Value: 3}, got[0])
	assert.Equal(t, Event{Type: EventCompleted, Task: "fetch", Value: 3}, got[1])
}

func TestPurgeOutput(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())
	waitOn(t)(h.ctl.Generate())

	dir := h.settings[settings.KeyOutputFolder]
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rfp-1.pdf"), []byte("x"), 0o644))

	out := waitOn(t)(h.ctl.PurgeOutput())
	assert.Equal(t, task.StateCompleted, out.State)
	assert.Equal(t, 2, out.Value)
	assert.Zero(t, h.ctl.Status().Generated)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	last := h.journal.entries[len(h.journal.entries)-1]
	assert.Equal(t, model.JobPurge, last.Kind)
	assert.Equal(t, 2, last.Count)
}

func TestStepsAreRejectedWhilePurging(t *testing.T) {
	h := newHarness(t, 2)
	waitOn(t)(h.ctl.Fetch())
	waitOn(t)(h.ctl.Generate())

	dir := h.settings[settings.KeyOutputFolder]
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rfp-1.pdf"), []byte("x"), 0o644))

	removing := make(chan struct{})
	release := make(chan struct{})
	h.ctl.removeAll = func(path string) error {
		close(removing)
		<-release
		return os.RemoveAll(path)
	}

	handle, err := h.ctl.PurgeOutput()
	require.NoError(t, err)
	<-removing

	_, err = h.ctl.Generate()
	assert.ErrorIs(t, err, task.ErrBusy)
	_, err = h.ctl.Dispatch()
	assert.ErrorIs(t, err, task.ErrBusy)
	_, err = h.ctl.PurgeOutput()
	assert.ErrorIs(t, err, task.ErrBusy)

	close(release)
	out := wait(t, handle, nil)
	assert.Equal(t, 1, out.Value)
	assert.Zero(t, h.ctl.Status().Generated)

	out = waitOn(t)(h.ctl.Generate())
	assert.Equal(t, 2, out.Value)
	assert.Equal(t, 2, h.ctl.Status().Generated)
}

func TestPage(t *testing.T) {
	h := newHarness(t, 3)
	waitOn(t)(h.ctl.Fetch())

	p, err := h.ctl.Page(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
	assert.Len(t, p.Records, 1)
	assert.Equal(t, 3, p.From)
	assert.Equal(t, 3, p.To)

	p, err = h.ctl.Page(9, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index)

	_, err = h.ctl.Page(0, -1)
	assert.ErrorIs(t, err, records.ErrInvalidCapacity)
}
