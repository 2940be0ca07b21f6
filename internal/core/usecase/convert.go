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
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

const downloadRoute = "/api/download/"

type ConvertBatchUseCase struct {
	catalog    ports.ToolCatalog
	storage    ports.ArtifactStorage
	transcoder ports.Transcoder
	archiver   ports.Archiver
	events     ports.EventPublisher
	ledger     ports.BatchLedger

	now   func() time.Time
	newID func() string
}

func NewConvertBatchUseCase(
	catalog ports.ToolCatalog,
	storage ports.ArtifactStorage,
	transcoder ports.Transcoder,
	archiver ports.Archiver,
	events ports.EventPublisher,
) *ConvertBatchUseCase {
	return &ConvertBatchUseCase{
		catalog:    catalog,
		storage:    storage,
		transcoder: transcoder,
		archiver:   archiver,
		events:     events,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// WithLedger records every produced artifact so the expiry sweep can find it later.
func (uc *ConvertBatchUseCase) WithLedger(ledger ports.BatchLedger) *ConvertBatchUseCase {
	uc.ledger = ledger
	return uc
}

type batchFile struct {
	inputKey  string
	outputKey string
	entryName string
}

func (uc *ConvertBatchUseCase) Convert(
	ctx context.Context,
	toolID string,
	uploads []domain.Upload,
) (*domain.ConversionResult, error) {
	policy, err := uc.policyFor(toolID)
	if err != nil {
		return nil, err
	}
	if err := checkUploads(uploads, policy.Validation); err != nil {
		return nil, err
	}

	batchID := uc.newID()
	files := planBatch(batchID, uploads, policy.OutputExtension)

	defer uc.removeKeys(ctx, inputKeys(files))

	if err := uc.saveInputs(ctx, files, uploads); err != nil {
		return nil, err
	}
	if err := uc.transcodeAll(ctx, files); err != nil {
		uc.removeKeys(ctx, outputKeys(files))
		return nil, err
	}

	result := &domain.ConversionResult{
		BatchID:   batchID,
		Status:    "success",
		FileCount: len(files),
	}
	if len(files) == 1 {
		result.Filename = files[0].outputKey
		result.Message = "conversion succeeded"
	} else {
		zipKey := batchID + "_converted.zip"
		if err := uc.archive(ctx, zipKey, files); err != nil {
			uc.removeKeys(ctx, outputKeys(files))
			uc.removeKeys(ctx, []string{zipKey})
			return nil, err
		}
		uc.removeKeys(ctx, outputKeys(files))
		result.Filename = zipKey
		result.Message = fmt.Sprintf("converted %d files", len(files))
	}
	result.DownloadURL = downloadRoute + result.Filename

	uc.publish(ctx, domain.ConversionCompleted{
		BatchID:   batchID,
		ToolID:    toolID,
		Filename:  result.Filename,
		FileCount: result.FileCount,
		CreatedAt: uc.now(),
	})
	return result, nil
}

func (uc *ConvertBatchUseCase) policyFor(toolID string) (*domain.ToolPolicy, error) {
	tool, err := uc.catalog.ToolByID(toolID)
	if err != nil {
		return nil, err
	}
	if !tool.Implemented() {
		return nil, domain.WrapError(domain.ErrToolNotImplemented, "convert batch", fmt.Errorf("tool %q has no backend", toolID))
	}
	return tool.Policy, nil
}

func checkUploads(uploads []domain.Upload, policy domain.ValidationPolicy) error {
	if len(uploads) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "convert batch", errors.New("at least one file is required"))
	}

	var wrongType, tooLarge []string
	for _, upload := range uploads {
		switch {
		case !hasAcceptedExtension(upload.Filename, policy.AcceptedExtensions):
			wrongType = append(wrongType, upload.Filename)
		case upload.Size > policy.MaxSizeBytes():
			tooLarge = append(tooLarge, upload.Filename)
		}
	}
	if len(wrongType) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "convert batch",
			fmt.Errorf("files are not %s: %s", strings.Join(policy.AcceptedExtensions, ", "), strings.Join(wrongType, ", ")))
	}
	if len(tooLarge) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "convert batch",
			fmt.Errorf("files larger than %dMB: %s", policy.MaxSizeMB, strings.Join(tooLarge, ", ")))
	}
	return nil
}

// planBatch assigns storage keys. Output keys keep the original stem so the download name
// can be recovered by stripping the batch prefix; repeated stems get a numeric suffix.
func planBatch(batchID string, uploads []domain.Upload, outputExt string) []batchFile {
	seen := make(map[string]int, len(uploads))
	files := make([]batchFile, 0, len(uploads))
	for idx, upload := range uploads {
		stem := sanitizeFilename(strings.TrimSuffix(filepath.Base(upload.Filename), filepath.Ext(upload.Filename)))
		seen[stem]++
		if n := seen[stem]; n > 1 {
			stem = fmt.Sprintf("%s_%d", stem, n)
		}
		files = append(files, batchFile{
			inputKey:  fmt.Sprintf("%s_input_%d%s", batchID, idx, strings.ToLower(fileExtension(upload.Filename))),
			outputKey: fmt.Sprintf("%s_%s%s", batchID, stem, outputExt),
			entryName: stem + outputExt,
		})
	}
	return files
}

func (uc *ConvertBatchUseCase) saveInputs(ctx context.Context, files []batchFile, uploads []domain.Upload) error {
	for idx, file := range files {
		n, err := uc.storage.Save(ctx, file.inputKey, uploads[idx].Body)
		if err != nil {
			return fmt.Errorf("save upload %q: %w", uploads[idx].Filename, err)
		}
		slog.Debug("upload_saved", "key", file.inputKey, "bytes", n)
	}
	return nil
}

func (uc *ConvertBatchUseCase) transcodeAll(ctx context.Context, files []batchFile) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, file := range files {
		group.Go(func() error {
			inputPath, err := uc.storage.Path(file.inputKey)
			if err != nil {
				return err
			}
			outputPath, err := uc.storage.Path(file.outputKey)
			if err != nil {
				return err
			}
			if err := uc.transcoder.Transcode(groupCtx, inputPath, outputPath); err != nil {
				return fmt.Errorf("transcode %s: %w", file.entryName, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("some files failed to convert, check whether they are corrupted: %w", err)
	}
	return nil
}

func (uc *ConvertBatchUseCase) archive(ctx context.Context, zipKey string, files []batchFile) error {
	entries := make([]ports.ArchiveEntry, 0, len(files))
	for _, file := range files {
		key := file.outputKey
		entries = append(entries, ports.ArchiveEntry{
			Name: file.entryName,
			Open: func() (io.ReadCloser, error) {
				rc, _, err := uc.storage.Open(ctx, key)
				return rc, err
			},
		})
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(uc.archiver.Write(ctx, pw, entries))
	}()

	if _, err := uc.storage.Save(ctx, zipKey, pr); err != nil {
		_ = pr.CloseWithError(err)
		return fmt.Errorf("create archive: %w", err)
	}
	return nil
}

func (uc *ConvertBatchUseCase) publish(ctx context.Context, event domain.ConversionCompleted) {
	if uc.ledger != nil {
		if err := uc.ledger.Record(ctx, event); err != nil {
			slog.Warn("conversion_batch_record_failed", "batch_id", event.BatchID, "error", err)
		}
	}
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishConversionCompleted(ctx, event); err != nil {
		slog.Warn("conversion_event_publish_failed", "batch_id", event.BatchID, "error", err)
	}
}

func (uc *ConvertBatchUseCase) removeKeys(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := uc.storage.Remove(ctx, key); err != nil && !domain.IsKind(err, domain.ErrArtifactNotFound) {
			slog.Warn("artifact_cleanup_failed", "key", key, "error", err)
		}
	}
}

func inputKeys(files []batchFile) []string {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.inputKey)
	}
	return keys
}

func outputKeys(files []batchFile) []string {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.outputKey)
	}
	return keys
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "audio"
	}
	return base
}
