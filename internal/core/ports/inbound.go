package ports

import (
	"context"
	"io"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

// BatchConverter is the inbound contract of the conversion backend.
type BatchConverter interface {
	Convert(ctx context.Context, toolID string, uploads []domain.Upload) (*domain.ConversionResult, error)
}

// ArtifactFetcher serves converted artifacts by their public filename.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, filename string) (*domain.Artifact, io.ReadCloser, error)
	Release(ctx context.Context, key string)
}

// ToolCatalog is the read-only view of categories and tools.
type ToolCatalog interface {
	Categories() []domain.Category
	ToolByID(id string) (domain.Tool, error)
}

// ArtifactExpirer removes artifacts nobody downloaded in time.
type ArtifactExpirer interface {
	Expire(ctx context.Context, event domain.ConversionCompleted) (removed bool, err error)
	Sweep(ctx context.Context, limit int) (removed int, err error)
}
