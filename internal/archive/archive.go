// Package archive packs a batch of dispatched documents and their voucher
// into a single zip file.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rfpdesk/internal/model"
)

// Zipper writes archives into Dir.
type Zipper struct {
	Dir    string
	Logger *slog.Logger
}

func NewZipper(dir string, logger *slog.Logger) *Zipper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Zipper{Dir: dir, Logger: logger}
}

// Build writes batch-<voucher stem>.zip containing every file of every
// artifact followed by the voucher, and returns its path. An existing file
// of that name is left untouched and reported as an error. A partially
// written archive is removed.
func (z *Zipper) Build(records []model.RequestRecord, voucherPath string) (path string, err error) {
	if err := os.MkdirAll(z.Dir, 0o755); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(voucherPath), filepath.Ext(voucherPath))
	path = filepath.Join(z.Dir, "batch-"+stem+".zip")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()

	zw := zip.NewWriter(f)
	for _, rec := range records {
		if rec.Artifact == nil {
			f.Close()
			return "", fmt.Errorf("archive: request %s has no generated document", rec.ID)
		}
		for _, file := range rec.Artifact.Files() {
			if err := addFile(zw, file); err != nil {
				f.Close()
				return "", err
			}
		}
	}
	if err := addFile(zw, voucherPath); err != nil {
		f.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if info, statErr := os.Stat(path); statErr == nil {
		z.Logger.Info("archive: built", "path", path, "entries", len(records)+1, "size", humanize.Bytes(uint64(info.Size())))
	}
	return path, nil
}

func addFile(zw *zip.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}
