package dispatch

import (
	"context"

	"github.com/rfpdesk/internal/model"
)

type route struct {
	channel   model.Channel
	container model.ContainerMode
}

// A strategy is either unit-shaped (open returns a per-item sender) or
// batch-shaped (voucher first, optional archive, optional transport of the
// batch file).
type strategy struct {
	unit      bool
	archive   bool
	transport func(e *Engine, ctx context.Context, cfg Config, path string) error
	open      func(e *Engine, ctx context.Context, cfg Config) (itemSender, func(), error)
}

type itemSender func(ctx context.Context, rec model.RequestRecord) error

var matrix = map[route]strategy{
	{model.ChannelSMTP, model.ContainerBatch}:       {archive: true, transport: (*Engine).mailFile},
	{model.ChannelSMTP, model.ContainerUnit}:        {unit: true, open: (*Engine).openMailUnit},
	{model.ChannelRegulated, model.ContainerBatch}:  {archive: true, transport: (*Engine).uploadFile},
	{model.ChannelRegulated, model.ContainerUnit}:   {unit: true, open: (*Engine).openRegulatedUnit},
	{model.ChannelFilesystem, model.ContainerBatch}: {archive: true},
	{model.ChannelFilesystem, model.ContainerUnit}:  {},
}
