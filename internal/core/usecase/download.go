package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

var mimeTypes = map[string]string{
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
	".zip": "application/zip",
	".mp4": "video/mp4",
	".pdf": "application/pdf",
}

type FetchArtifactUseCase struct {
	storage ports.ArtifactStorage
	ledger  ports.BatchLedger
	now     func() time.Time
}

func NewFetchArtifactUseCase(storage ports.ArtifactStorage) *FetchArtifactUseCase {
	return &FetchArtifactUseCase{
		storage: storage,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *FetchArtifactUseCase) WithLedger(ledger ports.BatchLedger) *FetchArtifactUseCase {
	uc.ledger = ledger
	return uc
}

// Fetch opens a converted artifact by the filename the conversion endpoint returned.
// The caller owns the reader and should Release the key once the transfer ends.
func (uc *FetchArtifactUseCase) Fetch(ctx context.Context, filename string) (*domain.Artifact, io.ReadCloser, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "fetch artifact", errors.New("filename is required"))
	}
	if _, err := uc.storage.Path(filename); err != nil {
		return nil, nil, err
	}

	rc, size, err := uc.storage.Open(ctx, filename)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}

	return &domain.Artifact{
		Key:          filename,
		DownloadName: downloadName(filename),
		MimeType:     mimeTypeFor(filename),
		Size:         size,
	}, rc, nil
}

// Release removes a served artifact; artifacts are single-download.
func (uc *FetchArtifactUseCase) Release(ctx context.Context, key string) {
	if err := uc.storage.Remove(ctx, key); err != nil && !domain.IsKind(err, domain.ErrArtifactNotFound) {
		slog.Warn("artifact_release_failed", "key", key, "error", err)
		return
	}
	slog.Info("artifact_released", "key", key)
	markReleased(ctx, uc.ledger, key, domain.ReleaseDownloaded, uc.now())
}

// markReleased ignores ErrArtifactNotFound: the artifact was never recorded or is already released.
func markReleased(ctx context.Context, ledger ports.BatchLedger, key string, reason domain.ReleaseReason, at time.Time) {
	if ledger == nil {
		return
	}
	if err := ledger.MarkReleased(ctx, key, reason, at); err != nil && !domain.IsKind(err, domain.ErrArtifactNotFound) {
		slog.Warn("conversion_batch_release_failed", "key", key, "reason", string(reason), "error", err)
	}
}

// downloadName strips the "<batch>_" prefix added by the conversion backend.
func downloadName(key string) string {
	if _, rest, ok := strings.Cut(key, "_"); ok && rest != "" {
		return rest
	}
	return key
}

func mimeTypeFor(name string) string {
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return "application/octet-stream"
}
