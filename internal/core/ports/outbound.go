package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

// ConversionClient submits a validated batch to the remote conversion endpoint.
// Every result, including transport errors, is folded into the returned outcome.
type ConversionClient interface {
	Submit(ctx context.Context, files []domain.FileDescriptor, onProgress ProgressFunc) domain.ConversionOutcome
}

// DownloadTrigger starts saving a resolved artifact without blocking the caller.
type DownloadTrigger interface {
	Trigger(url, suggestedFilename string)
}

// ArtifactStorage keeps uploaded inputs and converted outputs for a short time.
type ArtifactStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, key string) error
	Path(key string) (string, error)
}

// Transcoder turns one stored input file into one output file.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

type ArchiveEntry struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Archiver packs several converted files into one downloadable artifact.
type Archiver interface {
	Write(ctx context.Context, dst io.Writer, entries []ArchiveEntry) error
}

type EventPublisher interface {
	PublishConversionCompleted(ctx context.Context, event domain.ConversionCompleted) error
}

type EventSubscriber interface {
	SubscribeConversionCompleted(ctx context.Context, handler func(context.Context, domain.ConversionCompleted) error) error
}

// BatchLedger keeps a durable record of produced artifacts so unreleased ones can be swept
// after a restart or when no event bus is configured.
type BatchLedger interface {
	Record(ctx context.Context, event domain.ConversionCompleted) error
	MarkReleased(ctx context.Context, filename string, reason domain.ReleaseReason, at time.Time) error
	ListUnreleased(ctx context.Context, createdBefore time.Time, limit int) ([]domain.ConversionCompleted, error)
}
