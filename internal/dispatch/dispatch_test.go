package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/internal/archive"
	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/voucher"
)

type fakeControl struct {
	cancelAfter int
	progress    []int
	cancelled   atomic.Bool
}

func (c *fakeControl) Cancelled() bool { return c.cancelled.Load() }

func (c *fakeControl) Progress(n int) {
	c.progress = append(c.progress, n)
	if c.cancelAfter > 0 && n >= c.cancelAfter {
		c.cancelled.Store(true)
	}
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) Send(_ context.Context, path string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, filepath.Base(path))
	return nil
}

type fakeSession struct {
	bank   *fakeBank
	closed bool
}

func (s *fakeSession) Send(_ context.Context, path string) error {
	if s.bank.sendErr != nil {
		return s.bank.sendErr
	}
	s.bank.uploaded = append(s.bank.uploaded, filepath.Base(path))
	return nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeBank struct {
	sessions []*fakeSession
	uploaded []string
	sendErr  error
}

func (b *fakeBank) OpenSession(context.Context) (Session, error) {
	s := &fakeSession{bank: b}
	b.sessions = append(b.sessions, s)
	return s, nil
}

type fakeGateway struct {
	opened int
	sent   []string
}

func (g *fakeGateway) open(string) (Gateway, error) {
	g.opened++
	return g, nil
}

func (g *fakeGateway) Send(_ string, path string) error {
	g.sent = append(g.sent, filepath.Base(path))
	return nil
}

type fixture struct {
	dir     string
	out     string
	mailer  *fakeMailer
	bank    *fakeBank
	gateway *fakeGateway
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:     dir,
		out:     filepath.Join(dir, "output"),
		mailer:  &fakeMailer{},
		bank:    &fakeBank{},
		gateway: &fakeGateway{},
	}
	f.engine = NewEngine(Collaborators{
		Vouchers:    voucher.NewBuilder(f.out),
		Archiver:    archive.NewZipper(f.out, nil),
		Mailer:      f.mailer,
		Regulated:   f.bank,
		OpenGateway: f.gateway.open,
	}, nil)
	return f
}

// records writes one generated document per format and returns selected,
// generated records.
func (f *fixture) records(t *testing.T, formats ...model.Format) []model.RequestRecord {
	t.Helper()
	docs := filepath.Join(f.dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	recs := make([]model.RequestRecord, len(formats))
	for i, format := range formats {
		id := fmt.Sprintf("rfp-%d", i+1)
		ext := ".pdf"
		if format == model.FormatXML {
			ext = ".xml"
		}
		path := filepath.Join(docs, id+ext)
		require.NoError(t, os.WriteFile(path, []byte("document "+id), 0o644))
		recs[i] = model.RequestRecord{ID: id, Selected: true, Artifact: &model.GeneratedArtifact{PrimaryPath: path, Format: format}}
	}
	return recs
}

func pdfs(n int) []model.Format {
	formats := make([]model.Format, n)
	for i := range formats {
		formats[i] = model.FormatPDF
	}
	return formats
}

func (f *fixture) outputFiles(t *testing.T, pattern string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.out, pattern))
	require.NoError(t, err)
	return matches
}

func TestSMTPBatchTransportFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("smtp: 554 rejected")
	f.mailer.err = boom
	recs := f.records(t, pdfs(5)...)

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerBatch}, &fakeControl{})
	assert.Equal(t, boom, err)
	assert.Zero(t, n)

	assert.Empty(t, f.outputFiles(t, "voucher-*.json"), "voucher must be removed after a failed transport")
	assert.Empty(t, f.outputFiles(t, "batch-*.zip"), "archive must be removed after a failed transport")
}

func TestRollbackKeepsEarlierDelivery(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, pdfs(3)...)

	_, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelFilesystem, Container: model.ContainerBatch}, &fakeControl{})
	require.NoError(t, err)
	delivered := append(f.outputFiles(t, "voucher-*.json"), f.outputFiles(t, "batch-*.zip")...)
	require.Len(t, delivered, 2)

	boom := errors.New("smtp: 451 try again later")
	f.mailer.err = boom
	_, err = f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerBatch}, &fakeControl{})
	require.Equal(t, boom, err)

	for _, path := range delivered {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, "%s belongs to the earlier delivery", filepath.Base(path))
	}
	assert.ElementsMatch(t, delivered, append(f.outputFiles(t, "voucher-*.json"), f.outputFiles(t, "batch-*.zip")...))
}

func TestRepeatedUnitPassesKeepEveryVoucher(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, pdfs(2)...)
	cfg := Config{Channel: model.ChannelFilesystem, Container: model.ContainerUnit}

	_, err := f.engine.Dispatch(context.Background(), recs, cfg, &fakeControl{})
	require.NoError(t, err)
	_, err = f.engine.Dispatch(context.Background(), recs, cfg, &fakeControl{})
	require.NoError(t, err)

	vouchers := f.outputFiles(t, "voucher-*.json")
	require.Len(t, vouchers, 2)
	assert.Equal(t, voucher.Digest(vouchers[0]), voucher.Digest(vouchers[1]))
}

func TestSMTPBatchSendsArchive(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, pdfs(3)...)
	ctl := &fakeControl{}

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerBatch}, ctl)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{3}, ctl.progress)

	archives := f.outputFiles(t, "batch-*.zip")
	require.Len(t, archives, 1)
	assert.Equal(t, []string{filepath.Base(archives[0])}, f.mailer.sent)
	assert.Len(t, f.outputFiles(t, "voucher-*.json"), 1)
}

func TestFilesystemUnitBuildsVoucherOnly(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, model.FormatPDF, model.FormatPDF)
	ctl := &fakeControl{}

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelFilesystem, Container: model.ContainerUnit}, ctl)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{2}, ctl.progress)

	vouchers := f.outputFiles(t, "voucher-*.json")
	require.Len(t, vouchers, 1)
	m, err := voucher.Read(vouchers[0])
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count)

	assert.Empty(t, f.outputFiles(t, "*.zip"))
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.bank.sessions)
	assert.Empty(t, f.gateway.sent)
}

func TestFilesystemBatchBuildsArchive(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, pdfs(2)...)

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelFilesystem, Container: model.ContainerBatch}, &fakeControl{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.outputFiles(t, "batch-*.zip"), 1)
	assert.Empty(t, f.mailer.sent)
}

func TestIneligibleRecordsAreNeverSent(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, pdfs(3)...)
	recs[1].Selected = false
	recs = append(recs, model.RequestRecord{ID: "rfp-ungenerated", Selected: true})

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerUnit}, &fakeControl{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"rfp-1.pdf", "rfp-3.pdf"}, f.mailer.sent)
}

func TestNothingToDispatch(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, model.FormatPDF)
	recs[0].Selected = false

	_, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerUnit}, &fakeControl{})
	assert.ErrorIs(t, err, ErrNothingToDispatch)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Dispatch(context.Background(), f.records(t, model.FormatPDF), Config{Channel: "FAX", Container: model.ContainerUnit}, &fakeControl{})
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestSMTPUnitRoutesStructuredDocumentsToGateway(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, model.FormatPDF, model.FormatXML, model.FormatXML)
	ctl := &fakeControl{}

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerUnit, GatewayConfigPath: "smoc.yaml"}, ctl)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, ctl.progress)
	assert.Equal(t, []string{"rfp-1.pdf"}, f.mailer.sent)
	assert.Equal(t, []string{"rfp-2.xml", "rfp-3.xml"}, f.gateway.sent)
	assert.Equal(t, 1, f.gateway.opened)
}

func TestSMTPUnitCancellationVouchesSentItemsOnly(t *testing.T) {
	f := newFixture(t)
	recs := f.records(t, pdfs(4)...)
	ctl := &fakeControl{cancelAfter: 2}

	n, err := f.engine.Dispatch(context.Background(), recs, Config{Channel: model.ChannelSMTP, Container: model.ContainerUnit}, ctl)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.mailer.sent, 2)

	vouchers := f.outputFiles(t, "voucher-*.json")
	require.Len(t, vouchers, 1)
	m, err := voucher.Read(vouchers[0])
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count)
}

func TestSMTPUnitFailureLeavesNoVoucher(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")

	n, err := f.engine.Dispatch(context.Background(), f.records(t, pdfs(2)...), Config{Channel: model.ChannelSMTP, Container: model.ContainerUnit}, &fakeControl{})
	assert.EqualError(t, err, "smtp down")
	assert.Zero(t, n)
	assert.Empty(t, f.outputFiles(t, "voucher-*.json"))
}

func TestRegulatedUnitUsesOneClosedSession(t *testing.T) {
	f := newFixture(t)

	n, err := f.engine.Dispatch(context.Background(), f.records(t, pdfs(3)...), Config{Channel: model.ChannelRegulated, Container: model.ContainerUnit}, &fakeControl{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, f.bank.sessions, 1)
	assert.True(t, f.bank.sessions[0].closed)
	assert.Equal(t, []string{"rfp-1.pdf", "rfp-2.pdf", "rfp-3.pdf"}, f.bank.uploaded)
}

func TestRegulatedBatchFailureClosesSessionAndRollsBack(t *testing.T) {
	f := newFixture(t)
	f.bank.sendErr = errors.New("signature rejected")

	_, err := f.engine.Dispatch(context.Background(), f.records(t, pdfs(2)...), Config{Channel: model.ChannelRegulated, Container: model.ContainerBatch}, &fakeControl{})
	assert.EqualError(t, err, "signature rejected")
	require.Len(t, f.bank.sessions, 1)
	assert.True(t, f.bank.sessions[0].closed)
	assert.Empty(t, f.outputFiles(t, "voucher-*.json"))
	assert.Empty(t, f.outputFiles(t, "batch-*.zip"))
}

func TestBatchCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctl := &fakeControl{}
	ctl.cancelled.Store(true)

	n, err := f.engine.Dispatch(context.Background(), f.records(t, pdfs(2)...), Config{Channel: model.ChannelSMTP, Container: model.ContainerBatch}, ctl)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.mailer.sent)
}
