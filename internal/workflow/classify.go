package workflow

import (
	"errors"
	"net"
	"net/textproto"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rfpdesk/internal/dispatch"
	"github.com/rfpdesk/internal/gateway"
	"github.com/rfpdesk/internal/generation"
	"github.com/rfpdesk/internal/mailer"
	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/printer"
	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/regulated"
	"github.com/rfpdesk/internal/settings"
	"github.com/rfpdesk/internal/store"
	"github.com/rfpdesk/internal/task"
)

// Category tells an operator what kind of problem stopped a job.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryPrecondition  Category = "precondition"
	CategoryRendering     Category = "rendering"
	CategoryTransport     Category = "transport"
	CategoryDataSource    Category = "data_source"
	CategoryBusy          Category = "busy"
	CategoryUnknown       Category = "unknown"
)

var configurationErrors = []error{
	generation.ErrModuleConfigNotDefined,
	printer.ErrTemplateNotDefined,
	printer.ErrTemplateNotFound,
	mailer.ErrNotConfigured,
	regulated.ErrNotConfigured,
	gateway.ErrNotConfigured,
	settings.ErrInvalidValue,
	store.ErrDateRangeNotSpecified,
	dispatch.ErrUnknownRoute,
}

// Classify inspects err without unwrapping it for the caller.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return CategoryConfiguration
		}
	}
	switch {
	case errors.Is(err, task.ErrBusy), errors.Is(err, task.ErrClosed):
		return CategoryBusy
	case errors.Is(err, generation.ErrNothingSelected), errors.Is(err, dispatch.ErrNothingToDispatch):
		return CategoryPrecondition
	case errors.Is(err, records.ErrDuplicateID):
		return CategoryDataSource
	}

	var (
		pgErr     *pgconn.PgError
		statusErr *regulated.StatusError
		smtpErr   *textproto.Error
		netErr    net.Error
	)
	switch {
	case errors.As(err, &pgErr):
		return CategoryDataSource
	case errors.As(err, &statusErr), errors.As(err, &smtpErr), errors.As(err, &netErr):
		return CategoryTransport
	}
	return CategoryUnknown
}

var jobCategory = map[model.JobKind]Category{
	model.JobFetch:    CategoryDataSource,
	model.JobGenerate: CategoryRendering,
	model.JobDispatch: CategoryTransport,
	model.JobPurge:    CategoryConfiguration,
}

// classifyJob falls back to the step's own category for errors Classify
// does not recognize.
func classifyJob(kind model.JobKind, err error) Category {
	c := Classify(err)
	if kind == model.JobFetch && c == CategoryTransport {
		return CategoryDataSource
	}
	if c != CategoryUnknown {
		return c
	}
	if fallback, ok := jobCategory[kind]; ok {
		return fallback
	}
	return CategoryUnknown
}
