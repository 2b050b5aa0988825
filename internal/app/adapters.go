package app

import (
	"context"
	"log/slog"

	"github.com/rfpdesk/internal/archive"
	"github.com/rfpdesk/internal/dispatch"
	"github.com/rfpdesk/internal/gateway"
	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/printer"
	"github.com/rfpdesk/internal/regulated"
	"github.com/rfpdesk/internal/voucher"
)

// The collaborators below resolve their folders from the settings on every
// call, so a settings change applies to the next job.

type lazyPrinter struct {
	template string
	tempDir  func() string
}

func (p *lazyPrinter) Render(ctx context.Context, rec model.RequestRecord) (string, error) {
	return printer.NewTemplatePrinter(p.template, p.tempDir()).Render(ctx, rec)
}

type outputVoucher struct {
	dir func() string
}

func (v *outputVoucher) Build(recs []model.RequestRecord) (string, error) {
	return voucher.NewBuilder(v.dir()).Build(recs)
}

type outputArchiver struct {
	dir    func() string
	logger *slog.Logger
}

func (a *outputArchiver) Build(recs []model.RequestRecord, voucherPath string) (string, error) {
	return archive.NewZipper(a.dir(), a.logger).Build(recs, voucherPath)
}

type regulatedChannel struct {
	client *regulated.Client
}

func (r regulatedChannel) OpenSession(ctx context.Context) (dispatch.Session, error) {
	sess, err := r.client.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func openGateway(configPath string) (dispatch.Gateway, error) {
	gw, err := gateway.Open(configPath)
	if err != nil {
		return nil, err
	}
	return gw, nil
}
