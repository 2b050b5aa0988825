package dispatch

import (
	"context"
	"errors"
	"os"

	"github.com/rfpdesk/internal/model"
	"github.com/rfpdesk/internal/task"
)

// runBatch builds the voucher, then the archive when the strategy wants
// one, then hands the batch file to the transport. Any failure after the
// voucher exists removes the voucher and archive before returning.
func (e *Engine) runBatch(ctx context.Context, s strategy, eligible []model.RequestRecord, cfg Config, ctl task.Control) (int, error) {
	if ctl.Cancelled() {
		return 0, nil
	}

	voucherPath, err := e.vouchers.Build(eligible)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("dispatch: voucher built", "path", voucherPath)

	batchFile := voucherPath
	var archivePath string
	if s.archive {
		archivePath, err = e.archiver.Build(eligible, voucherPath)
		if err != nil {
			e.rollback(voucherPath, "")
			return 0, err
		}
		batchFile = archivePath
	}

	if s.transport != nil {
		if err := s.transport(e, ctx, cfg, batchFile); err != nil {
			e.logger.Error("dispatch: transport failed", "file", batchFile, "err", err)
			e.rollback(voucherPath, archivePath)
			return 0, err
		}
	}

	ctl.Progress(len(eligible))
	e.logger.Info("dispatch: batch delivered", "items", len(eligible), "voucher", voucherPath, "archive", archivePath)
	return len(eligible), nil
}

// runUnit delivers records one at a time, stopping between items when
// cancelled. A transport failure is returned as is and leaves no voucher.
func (e *Engine) runUnit(ctx context.Context, s strategy, eligible []model.RequestRecord, cfg Config, ctl task.Control) (int, error) {
	send, release, err := s.open(e, ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer release()

	sent := make([]model.RequestRecord, 0, len(eligible))
	for _, rec := range eligible {
		if ctl.Cancelled() || ctx.Err() != nil {
			e.logger.Info("dispatch: stopped before next item", "sent", len(sent))
			break
		}
		if err := send(ctx, rec); err != nil {
			e.logger.Error("dispatch: item failed", "id", rec.ID, "err", err)
			return len(sent), err
		}
		sent = append(sent, rec)
		ctl.Progress(len(sent))
	}

	if len(sent) == 0 {
		return 0, nil
	}
	voucherPath, err := e.vouchers.Build(sent)
	if err != nil {
		return len(sent), err
	}
	e.logger.Info("dispatch: items delivered", "items", len(sent), "voucher", voucherPath)
	return len(sent), nil
}

// rollback removes the files built by the current attempt. Their names are
// unique per attempt, so files of earlier deliveries are never touched.
func (e *Engine) rollback(voucherPath, archivePath string) {
	for _, path := range []string{archivePath, voucherPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("dispatch: rollback failed", "path", path, "err", err)
			continue
		}
		e.logger.Info("dispatch: rolled back", "path", path)
	}
}
