// Package settings holds the key/value settings the workflow consults: the
// delivery channel, container mode, output format, folders and the paths of
// the external module and gateway configuration files.
package settings

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rfpdesk/internal/model"
)

const (
	KeyOutputType      = "output.type"
	KeyOutputContainer = "output.container"
	KeyOutputFormat    = "output.format"
	KeyOutputFolder    = "folder.output"
	KeyTempFolder      = "folder.temp"
	KeyModuleConfig    = "smic.conf"
	KeyGatewayConfig   = "smoc.conf"
	KeyStartDate       = "rfp.start_date"
	KeyEndDate         = "rfp.end_date"
)

// Delivery channel values as stored in the settings file.
const (
	SendSMTP       = "SEND_SMTP"
	SendEBICS      = "SEND_EBICS"
	SendFilesystem = "SEND_FILESYSTEM"
)

const DateLayout = "2006-01-02"

var ErrInvalidValue = errors.New("settings: invalid value")

var defaults = map[string]string{
	KeyOutputType:      SendSMTP,
	KeyOutputContainer: string(model.ContainerUnit),
	KeyOutputFormat:    string(model.FormatPDF),
	KeyOutputFolder:    "./output",
	KeyTempFolder:      "./temp",
	KeyGatewayConfig:   "",
}

// Keys lists every known setting in display order.
var Keys = []string{
	KeyOutputType, KeyOutputContainer, KeyOutputFormat, KeyOutputFolder,
	KeyTempFolder, KeyModuleConfig, KeyGatewayConfig, KeyStartDate, KeyEndDate,
}

// Provider exposes raw setting values. ok is false when the key is unset.
type Provider interface {
	Lookup(key string) (value string, ok bool)
}

// File is a Provider backed by a flat YAML map on disk.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// Open loads the settings file at path. A missing file yields an empty set,
// so every setting falls back to its default.
func Open(path string) (*File, error) {
	f := &File{path: path, values: map[string]string{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, &f.values); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if f.values == nil {
		f.values = map[string]string{}
	}
	return f, nil
}

// Path returns where the settings are saved.
func (f *File) Path() string {
	return f.path
}

func (f *File) Lookup(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

// All returns every known setting with defaults applied.
func (f *File) All() map[string]string {
	out := make(map[string]string, len(Keys))
	for _, k := range Keys {
		out[k] = Get(f, k)
	}
	return out
}

// Set validates and stores one value in memory. Call Save to persist.
func (f *File) Set(key, value string) error {
	value = strings.TrimSpace(value)
	if err := Validate(key, value); err != nil {
		return err
	}
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
	return nil
}

// Update validates every value first and applies them only if all pass.
func (f *File) Update(values map[string]string) error {
	var errs []error
	clean := make(map[string]string, len(values))
	for k, v := range values {
		v = strings.TrimSpace(v)
		if err := Validate(k, v); err != nil {
			errs = append(errs, err)
			continue
		}
		clean[k] = v
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	f.mu.Lock()
	maps.Copy(f.values, clean)
	f.mu.Unlock()
	return nil
}

// Save writes the settings file atomically.
func (f *File) Save() error {
	f.mu.RLock()
	raw, err := yaml.Marshal(f.values)
	f.mu.RUnlock()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// Validate checks a value against the rules of its key.
func Validate(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidValue, key)
	}
	switch key {
	case KeyOutputType:
		if !slices.Contains([]string{SendSMTP, SendEBICS, SendFilesystem}, value) {
			return fmt.Errorf("%w: %s must be %s, %s or %s", ErrInvalidValue, key, SendSMTP, SendEBICS, SendFilesystem)
		}
	case KeyOutputFormat:
		if !model.Format(value).IsValid() {
			return fmt.Errorf("%w: %s must be PDF or XML", ErrInvalidValue, key)
		}
	case KeyOutputContainer:
		if !model.ContainerMode(value).IsValid() {
			return fmt.Errorf("%w: %s must be UNIT or BATCH", ErrInvalidValue, key)
		}
	case KeyStartDate, KeyEndDate:
		if value == "" {
			return nil
		}
		if _, err := time.Parse(DateLayout, value); err != nil {
			return fmt.Errorf("%w: %s must use the %s layout", ErrInvalidValue, key, DateLayout)
		}
	case KeyGatewayConfig:
		// may be blank
	default:
		if value == "" {
			return fmt.Errorf("%w: %s must not be blank", ErrInvalidValue, key)
		}
	}
	return nil
}

// Get returns the value of key, or its default when unset.
func Get(p Provider, key string) string {
	if v, ok := p.Lookup(key); ok && v != "" {
		return v
	}
	return defaults[key]
}

// Channel maps the stored delivery type onto a dispatch channel. Unknown
// values fall back to SMTP.
func Channel(p Provider) model.Channel {
	switch Get(p, KeyOutputType) {
	case SendEBICS:
		return model.ChannelRegulated
	case SendFilesystem:
		return model.ChannelFilesystem
	default:
		return model.ChannelSMTP
	}
}

func Container(p Provider) model.ContainerMode {
	if m := model.ContainerMode(Get(p, KeyOutputContainer)); m.IsValid() {
		return m
	}
	return model.ContainerUnit
}

func Format(p Provider) model.Format {
	if f := model.Format(Get(p, KeyOutputFormat)); f.IsValid() {
		return f
	}
	return model.FormatPDF
}

// DateRange returns the fetch window. A missing bound is the zero time.
func DateRange(p Provider) (from, to time.Time) {
	from, _ = time.Parse(DateLayout, Get(p, KeyStartDate))
	to, _ = time.Parse(DateLayout, Get(p, KeyEndDate))
	return from, to
}

// Static is a fixed in-memory Provider.
type Static map[string]string

func (s Static) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}
