package dispatch

import (
	"context"
	"errors"

	"github.com/rfpdesk/internal/model"
)

var (
	errNoMailer    = errors.New("dispatch: mail transport is not configured")
	errNoRegulated = errors.New("dispatch: regulated channel is not configured")
	errNoGateway   = errors.New("dispatch: messaging gateway is not configured")
)

func (e *Engine) mailFile(ctx context.Context, _ Config, path string) error {
	if e.mailer == nil {
		return errNoMailer
	}
	return e.mailer.Send(ctx, path)
}

// uploadFile sends the batch file inside its own session, closed on every
// path.
func (e *Engine) uploadFile(ctx context.Context, _ Config, path string) error {
	sess, release, err := e.openSession(ctx)
	if err != nil {
		return err
	}
	defer release()
	return sess.Send(ctx, path)
}

func (e *Engine) openSession(ctx context.Context) (Session, func(), error) {
	if e.regulated == nil {
		return nil, nil, errNoRegulated
	}
	sess, err := e.regulated.OpenSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("dispatch: closing regulated session failed", "err", err)
		}
	}
	return sess, release, nil
}

func (e *Engine) openRegulatedUnit(ctx context.Context, _ Config) (itemSender, func(), error) {
	sess, release, err := e.openSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	send := func(ctx context.Context, rec model.RequestRecord) error {
		return sess.Send(ctx, rec.Artifact.PrimaryPath)
	}
	return send, release, nil
}

// openMailUnit mails each document, except structured ones which go to the
// messaging gateway. The gateway is opened on first use.
func (e *Engine) openMailUnit(_ context.Context, cfg Config) (itemSender, func(), error) {
	var gw Gateway
	send := func(ctx context.Context, rec model.RequestRecord) error {
		if rec.Artifact.Format != model.FormatXML {
			if e.mailer == nil {
				return errNoMailer
			}
			return e.mailer.Send(ctx, rec.Artifact.PrimaryPath)
		}
		if gw == nil {
			if e.openGateway == nil {
				return errNoGateway
			}
			opened, err := e.openGateway(cfg.GatewayConfigPath)
			if err != nil {
				return err
			}
			gw = opened
		}
		return gw.Send("Request for payment "+rec.ID, rec.Artifact.PrimaryPath)
	}
	return send, func() {}, nil
}
