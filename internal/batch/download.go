package batch

import (
	"context"
	"io"
	"os"
	"path/filepath"

	errors "github.com/kasflow/payment-batch/internal"
	"github.com/kasflow/payment-batch/internal/core/events"
)

// OpenFile streams the bank file for proxying to a dashboard client. The
// caller owns the reader. There is no retry with backoff: one failed attempt
// surfaces one error notification.
func (s *Service) OpenFile(ctx context.Context, batchID, fileName string) (io.ReadCloser, error) {
	if fileName == "" {
		s.notifyFailure(ctx, batchID, ActionDownload, errors.ErrFileNotFound)
		return nil, errors.ErrFileNotFound
	}

	body, err := s.api.DownloadFile(ctx, batchID, fileName)
	if err != nil {
		s.notifyFailure(ctx, batchID, ActionDownload, err)
		return nil, err
	}
	return body, nil
}

// SaveFile downloads the bank file into destDir. The content is written to a
// temporary file first and renamed into place only on success, so a failed
// download never leaves a partial artifact behind.
func (s *Service) SaveFile(ctx context.Context, batchID, fileName, destDir string) (string, error) {
	body, err := s.OpenFile(ctx, batchID, fileName)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		wrapped := errors.NewInternalError("failed to create download directory", err)
		s.notifyFailure(ctx, batchID, ActionDownload, wrapped)
		return "", wrapped
	}

	tmp, err := os.CreateTemp(destDir, ".download-*")
	if err != nil {
		wrapped := errors.NewInternalError("failed to create temporary file", err)
		s.notifyFailure(ctx, batchID, ActionDownload, wrapped)
		return "", wrapped
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		wrapped := errors.NewExternalError("download interrupted", errors.ErrCodeDownloadFailed, err)
		s.notifyFailure(ctx, batchID, ActionDownload, wrapped)
		return "", wrapped
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		wrapped := errors.NewInternalError("failed to finish writing file", err)
		s.notifyFailure(ctx, batchID, ActionDownload, wrapped)
		return "", wrapped
	}

	destPath := filepath.Join(destDir, filepath.Base(fileName))
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		wrapped := errors.NewInternalError("failed to move file into place", err)
		s.notifyFailure(ctx, batchID, ActionDownload, wrapped)
		return "", wrapped
	}

	s.logger.Info("bank file downloaded", "batch_id", batchID, "file_name", fileName, "path", destPath)
	s.bus.Publish(ctx, events.NewBatchFileDownloaded(batchID, fileName, destPath))
	return destPath, nil
}
