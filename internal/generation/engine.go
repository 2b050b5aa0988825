// Package generation renders and packages a document for every record
// selected for generation and attaches the resulting artifact to the record.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/printer"
	"github.com/rfpdesk/internal/records"
	"github.com/rfpdesk/internal/task"
)

var (
	ErrModuleConfigNotDefined = errors.New("generation: module configuration file is not defined")
	ErrNothingSelected        = errors.New("generation: no request for payment is selected")
)

// Printer renders the base document of a record and returns its path.
type Printer interface {
	Render(ctx context.Context, rec model.RequestRecord) (string, error)
}

// Packager turns a rendered document into the delivered artifact.
type Packager interface {
	Package(ctx context.Context, renderedPath string, rec model.RequestRecord, opts printer.PackageOptions) (model.GeneratedArtifact, error)
}

// Store is the part of the record collection the engine works on.
type Store interface {
	At(i int) (model.RequestRecord, bool)
	Attach(id string, artifact model.GeneratedArtifact) error
}

type Options struct {
	Format           model.Format
	OutputFolder     string
	TempFolder       string
	ModuleConfigPath string
}

type Engine struct {
	printer  Printer
	packager Packager
	logger   *slog.Logger
}

func NewEngine(p Printer, pk Packager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{printer: p, packager: pk, logger: logger}
}

// Generate processes the selected records in collection order. It returns the
// number of artifacts attached. A rendering or packaging failure stops the pass
// and is returned as is; artifacts attached before it stay attached.
func (e *Engine) Generate(ctx context.Context, store Store, opts Options, ctl task.Control) (int, error) {
	if opts.ModuleConfigPath == "" {
		return 0, ErrModuleConfigNotDefined
	}
	if !opts.Format.IsValid() {
		opts.Format = model.FormatPDF
	}

	pkgOpts := printer.PackageOptions{
		Format:           opts.Format,
		OutputFolder:     absPath(opts.OutputFolder),
		TempFolder:       absPath(opts.TempFolder),
		ModuleConfigPath: absPath(opts.ModuleConfigPath),
	}
	for _, dir := range []string{pkgOpts.OutputFolder, pkgOpts.TempFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}

	generated := 0
	for i := 0; ; i++ {
		rec, ok := store.At(i)
		if !ok {
			break
		}
		if !rec.Selected {
			continue
		}
		if ctl.Cancelled() || ctx.Err() != nil {
			e.logger.Info("generation: stopped before next item", "generated", generated)
			return generated, nil
		}

		rendered, err := e.printer.Render(ctx, rec)
		if err != nil {
			e.logger.Error("generation: render failed", "id", rec.ID, "err", err)
			return generated, err
		}
		artifact, err := e.packager.Package(ctx, rendered, rec, pkgOpts)
		if err != nil {
			e.logger.Error("generation: packaging failed", "id", rec.ID, "err", err)
			return generated, err
		}
		if err := store.Attach(rec.ID, artifact); err != nil {
			if errors.Is(err, records.ErrNotSelected) {
				e.logger.Info("generation: deselected while rendering", "id", rec.ID)
				discard(artifact)
				continue
			}
			return generated, err
		}

		generated++
		ctl.Progress(generated)
	}

	e.logger.Info("generation: finished", "generated", generated, "format", string(opts.Format))
	return generated, nil
}

func absPath(p string) string {
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func discard(a model.GeneratedArtifact) {
	for _, path := range a.Files() {
		os.Remove(path)
	}
}
