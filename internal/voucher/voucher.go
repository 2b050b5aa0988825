// Package voucher builds the manifest that accompanies a batch of dispatched
// documents.
package voucher

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/rfpdesk/internal/model"
)

// Entry describes one delivered file.
type Entry struct {
	ID     string `json:"id"`
	File   string `json:"file"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
	Digest string `json:"blake2b"`
}

// Manifest is the voucher document written to disk.
type Manifest struct {
	Count   int     `json:"count"`
	Entries []Entry `json:"entries"`
}

// Builder writes vouchers into Dir.
type Builder struct {
	Dir string
}

func NewBuilder(dir string) *Builder {
	return &Builder{Dir: dir}
}

// Build writes a voucher covering the primary artifact of each record and
// returns its path. The content and the digest part of the name depend only
// on the covered set; the suffix makes every call write a new file, so an
// earlier voucher for the same set is never replaced.
func (b *Builder) Build(records []model.RequestRecord) (string, error) {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		if rec.Artifact == nil {
			return "", fmt.Errorf("voucher: request %s has no generated document", rec.ID)
		}
		entry, err := describe(rec)
		if err != nil {
			return "", err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	raw, err := json.MarshalIndent(Manifest{Count: len(entries), Entries: entries}, "", "  ")
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	name := fmt.Sprintf("voucher-%s-%s.json", hex.EncodeToString(sum[:])[:12], uuid.NewString()[:8])

	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(b.Dir, name)
	if err := writeExclusive(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

// Digest returns the content digest embedded in a voucher file name.
func Digest(path string) string {
	parts := strings.Split(strings.TrimSuffix(filepath.Base(path), ".json"), "-")
	if len(parts) < 2 || parts[0] != "voucher" {
		return ""
	}
	return parts[1]
}

func writeExclusive(path string, raw []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// Read loads a voucher written by Build.
func Read(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("voucher: parse %s: %w", path, err)
	}
	return &m, nil
}

func describe(rec model.RequestRecord) (Entry, error) {
	f, err := os.Open(rec.Artifact.PrimaryPath)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return Entry{}, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:     rec.ID,
		File:   filepath.Base(rec.Artifact.PrimaryPath),
		Format: string(rec.Artifact.Format),
		Size:   size,
		Digest: hex.EncodeToString(h.Sum(nil)),
	}, nil
}
