// Package dispatch delivers generated documents through the configured
// channel, either one by one or as a single archived batch.
//
// The behavior for each channel and container mode is a strategy looked up
// in a fixed matrix. Batch-shaped strategies share one runner that builds the
// voucher (and archive) first and removes them again when delivery fails, so
// no manifest ever describes documents that were not delivered. Unit-shaped
// strategies deliver item by item and build a voucher over what was sent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/task"
)

var (
	ErrNothingToDispatch = errors.New("dispatch: no generated request for payment is selected")
	ErrUnknownRoute      = errors.New("dispatch: unsupported channel and container combination")
)

type VoucherBuilder interface {
	Build(records []model.RequestRecord) (string, error)
}

type Archiver interface {
	Build(records []model.RequestRecord, voucherPath string) (string, error)
}

type Mailer interface {
	Send(ctx context.Context, path string) error
}

// RegulatedChannel opens upload sessions on the regulated interbank channel.
type RegulatedChannel interface {
	OpenSession(ctx context.Context) (Session, error)
}

type Session interface {
	Send(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// Gateway is the regulated messaging gateway used for structured documents.
type Gateway interface {
	Send(subject, path string) error
}

// GatewayOpener opens the gateway described by a configuration file.
type GatewayOpener func(configPath string) (Gateway, error)

type Config struct {
	Channel           model.Channel
	Container         model.ContainerMode
	GatewayConfigPath string
}

type Engine struct {
	vouchers    VoucherBuilder
	archiver    Archiver
	mailer      Mailer
	regulated   RegulatedChannel
	openGateway GatewayOpener
	logger      *slog.Logger
}

// Collaborators groups the engine's dependencies. Transports that are never
// configured may be left nil; selecting a route that needs them fails.
type Collaborators struct {
	Vouchers    VoucherBuilder
	Archiver    Archiver
	Mailer      Mailer
	Regulated   RegulatedChannel
	OpenGateway GatewayOpener
}

func NewEngine(c Collaborators, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		vouchers:    c.Vouchers,
		archiver:    c.Archiver,
		mailer:      c.Mailer,
		regulated:   c.Regulated,
		openGateway: c.OpenGateway,
		logger:      logger,
	}
}

// Dispatch delivers the eligible records and returns how many were sent.
// Records without a generated document or not selected are ignored. The set
// is fixed for the whole call.
func (e *Engine) Dispatch(ctx context.Context, records []model.RequestRecord, cfg Config, ctl task.Control) (int, error) {
	s, ok := matrix[route{cfg.Channel, cfg.Container}]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownRoute, cfg.Channel, cfg.Container)
	}

	eligible := make([]model.RequestRecord, 0, len(records))
	for _, rec := range records {
		if rec.Eligible() {
			eligible = append(eligible, rec.Clone())
		}
	}
	if len(eligible) == 0 {
		return 0, ErrNothingToDispatch
	}

	e.logger.Info("dispatch: started", "channel", string(cfg.Channel), "container", string(cfg.Container), "items", len(eligible))
	if s.unit {
		return e.runUnit(ctx, s, eligible, cfg, ctl)
	}
	return e.runBatch(ctx, s, eligible, cfg, ctl)
}
