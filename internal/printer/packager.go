package printer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rfpdesk/internal/model"
)

// ModuleConfig is the external module configuration consulted when packaging
// output, identifying the issuer of the requests.
type ModuleConfig struct {
	IssuerName string `yaml:"issuer_name"`
	IssuerID   string `yaml:"issuer_id"`
	Schema     string `yaml:"schema"`
}

// LoadModuleConfig reads the YAML module configuration at path.
func LoadModuleConfig(path string) (*ModuleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module config: %w", err)
	}
	var cfg ModuleConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse module config %s: %w", path, err)
	}
	if cfg.Schema == "" {
		cfg.Schema = "rfp.001"
	}
	return &cfg, nil
}

// PackageOptions carries the output pipeline settings for one generation pass.
type PackageOptions struct {
	Format           model.Format
	OutputFolder     string
	TempFolder       string
	ModuleConfigPath string
}

// Packager turns a rendered base document into the artifact delivered to the
// debtor.
type Packager struct{}

func NewPackager() *Packager {
	return &Packager{}
}

// Package moves the rendered document into the output folder. XML output
// gets a structured primary file and keeps the rendering as its companion.
func (p *Packager) Package(ctx context.Context, renderedPath string, rec model.RequestRecord, opts PackageOptions) (model.GeneratedArtifact, error) {
	if err := ctx.Err(); err != nil {
		return model.GeneratedArtifact{}, err
	}
	cfg, err := LoadModuleConfig(opts.ModuleConfigPath)
	if err != nil {
		return model.GeneratedArtifact{}, err
	}

	base := filepath.Join(opts.OutputFolder, safeName(rec.ID))
	rendering := base + ".pdf"
	if err := moveFile(renderedPath, rendering); err != nil {
		return model.GeneratedArtifact{}, err
	}

	switch opts.Format {
	case model.FormatXML:
		primary := base + ".xml"
		if err := writeXML(primary, rec, cfg, filepath.Base(rendering)); err != nil {
			return model.GeneratedArtifact{}, err
		}
		return model.GeneratedArtifact{PrimaryPath: primary, Format: model.FormatXML, SecondaryPath: rendering}, nil
	default:
		return model.GeneratedArtifact{PrimaryPath: rendering, Format: model.FormatPDF}, nil
	}
}

type xmlAttribute struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlRequest struct {
	XMLName    xml.Name       `xml:"RequestForPayment"`
	Schema     string         `xml:"schema,attr"`
	ID         string         `xml:"Id"`
	IssuerName string         `xml:"Issuer>Name"`
	IssuerID   string         `xml:"Issuer>Id"`
	Attributes []xmlAttribute `xml:"Attributes>Attribute"`
	Rendering  string         `xml:"Rendering"`
}

func writeXML(path string, rec model.RequestRecord, cfg *ModuleConfig, rendering string) error {
	doc := xmlRequest{
		Schema:     cfg.Schema,
		ID:         rec.ID,
		IssuerName: cfg.IssuerName,
		IssuerID:   cfg.IssuerID,
		Rendering:  rendering,
	}
	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		doc.Attributes = append(doc.Attributes, xmlAttribute{Name: k, Value: rec.Attributes[k]})
	}

	raw, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(xml.Header), raw...), 0o644)
}

// moveFile renames src to dst, copying when the folders are on different
// devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
