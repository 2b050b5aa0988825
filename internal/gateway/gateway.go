// Package gateway deposits documents into the spool directory watched by the
// regulated messaging gateway.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrNotConfigured = errors.New("gateway: configuration file is not defined")

// Config is read from the gateway configuration file.
type Config struct {
	SpoolDir  string `yaml:"spool_dir"`
	Sender    string `yaml:"sender"`
	Recipient string `yaml:"recipient"`
}

// Envelope is written next to every deposited file.
type Envelope struct {
	Subject   string    `yaml:"subject"`
	File      string    `yaml:"file"`
	Sender    string    `yaml:"sender"`
	Recipient string    `yaml:"recipient"`
	Deposited time.Time `yaml:"deposited"`
}

type Gateway struct {
	cfg Config
	now func() time.Time
}

// Open loads the configuration at configPath. A relative spool directory is
// resolved against the configuration file's directory.
func Open(configPath string) (*Gateway, error) {
	if configPath == "" {
		return nil, ErrNotConfigured
	}
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("gateway: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("gateway: parse config %s: %w", configPath, err)
	}
	if cfg.SpoolDir == "" {
		return nil, fmt.Errorf("gateway: %s: spool_dir is required", configPath)
	}
	if !filepath.IsAbs(cfg.SpoolDir) {
		cfg.SpoolDir = filepath.Join(filepath.Dir(configPath), cfg.SpoolDir)
	}
	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, now: time.Now}, nil
}

// Send copies the file into the spool and writes its envelope.
func (g *Gateway) Send(subject, path string) error {
	name := filepath.Base(path)
	if err := copyFile(path, filepath.Join(g.cfg.SpoolDir, name)); err != nil {
		return err
	}

	env, err := yaml.Marshal(Envelope{
		Subject:   subject,
		File:      name,
		Sender:    g.cfg.Sender,
		Recipient: g.cfg.Recipient,
		Deposited: g.now().UTC(),
	})
	if err != nil {
		return err
	}
	envPath := filepath.Join(g.cfg.SpoolDir, strings.TrimSuffix(name, filepath.Ext(name))+".envelope.yaml")
	return os.WriteFile(envPath, env, 0o644)
}

// SpoolDir returns where documents are deposited.
func (g *Gateway) SpoolDir() string {
	return g.cfg.SpoolDir
}

func copyFile(src, dst string) error {
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
	return out.Close()
}
