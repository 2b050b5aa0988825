// Package printer renders the base document of a request for payment and
// packages it into the configured output format.
package printer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rfpdesk/internal/model"
)

var (
	ErrTemplateNotDefined = errors.New("printer: request for payment template is not defined")
	ErrTemplateNotFound   = errors.New("printer: request for payment template not found")
)

// TemplatePrinter renders a record through a token template into the temp
// folder.
type TemplatePrinter struct {
	TemplatePath string
	TempFolder   string
}

func NewTemplatePrinter(templatePath, tempFolder string) *TemplatePrinter {
	return &TemplatePrinter{TemplatePath: templatePath, TempFolder: tempFolder}
}

// Render writes the rendered document and returns its path.
func (p *TemplatePrinter) Render(ctx context.Context, rec model.RequestRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.TemplatePath == "" {
		return "", ErrTemplateNotDefined
	}
	raw, err := os.ReadFile(p.TemplatePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, p.TemplatePath)
	}
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(p.TempFolder, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(p.TempFolder, safeName(rec.ID)+".txt")
	if err := os.WriteFile(out, []byte(RenderTemplate(string(raw), rec.Attributes)), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// safeName keeps identifiers usable as file names.
func safeName(id string) string {
	b := []byte(id)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "_"
	}
	return string(b)
}
