package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

type catalogFake struct{}

func (catalogFake) Categories() []domain.Category { return nil }

func (catalogFake) ToolByID(id string) (domain.Tool, error) {
	switch id {
	case "mp3-to-wav":
		policy := mp3Tool
		return domain.Tool{ID: id, Policy: &policy}, nil
	case "pdf-merge":
		return domain.Tool{ID: id}, nil
	default:
		return domain.Tool{}, domain.WrapError(domain.ErrToolNotFound, "lookup tool", errors.New(id))
	}
}

// transcoderFake upper-cases the stored input into the output key.
type transcoderFake struct {
	storage *memStorage
	failOn  string
}

func (f *transcoderFake) Transcode(ctx context.Context, inPath, outPath string) error {
	in := strings.TrimPrefix(inPath, memRoot)
	raw, ok := f.storage.get(in)
	if !ok {
		return errors.New("missing input " + in)
	}
	if f.failOn != "" && raw == f.failOn {
		return errors.New("invalid data found when processing input")
	}
	_, err := f.storage.Save(ctx, strings.TrimPrefix(outPath, memRoot), strings.NewReader(strings.ToUpper(raw)))
	return err
}

type zipFake struct{}

func (zipFake) Write(_ context.Context, dst io.Writer, entries []ports.ArchiveEntry) error {
	zw := zip.NewWriter(dst)
	for _, e := range entries {
		src, err := e.Open()
		if err != nil {
			return err
		}
		w, err := zw.Create(e.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, src); err != nil {
			return err
		}
		_ = src.Close()
	}
	return zw.Close()
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.ConversionCompleted
	err    error
}

func (p *publisherFake) PublishConversionCompleted(_ context.Context, e domain.ConversionCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func upload(name, body string) domain.Upload {
	return domain.Upload{Filename: name, Size: int64(len(body)), Body: strings.NewReader(body)}
}

func newConvertUC(storage *memStorage, transcoder *transcoderFake, events *publisherFake) *ConvertBatchUseCase {
	uc := NewConvertBatchUseCase(catalogFake{}, storage, transcoder, zipFake{}, events)
	uc.newID = func() string { return "b1" }
	uc.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return uc
}

func TestConvertSingleFile(t *testing.T) {
	storage := newMemStorage()
	events := &publisherFake{}
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, events)

	result, err := uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{upload("My Song.mp3", "abc")})
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "b1_My_Song.wav", result.Filename)
	assert.Equal(t, "/api/download/b1_My_Song.wav", result.DownloadURL)
	assert.Equal(t, "conversion succeeded", result.Message)
	assert.Equal(t, 1, result.FileCount)

	assert.Equal(t, []string{"b1_My_Song.wav"}, storage.keys())
	body, _ := storage.get("b1_My_Song.wav")
	assert.Equal(t, "ABC", body)

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.ConversionCompleted{
		BatchID:   "b1",
		ToolID:    "mp3-to-wav",
		Filename:  "b1_My_Song.wav",
		FileCount: 1,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, events.events[0])
}

func TestConvertRecordsLedgerEntry(t *testing.T) {
	storage := newMemStorage()
	ledger := newLedgerFake()
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, &publisherFake{}).WithLedger(ledger)

	_, err := uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{upload("a.mp3", "x")})
	require.NoError(t, err)

	due, err := ledger.ListUnreleased(context.Background(), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b1_a.wav", due[0].Filename)
	assert.Equal(t, "b1", due[0].BatchID)
}

func TestConvertBatchProducesArchive(t *testing.T) {
	storage := newMemStorage()
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, &publisherFake{})

	result, err := uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{
		upload("a.mp3", "one"),
		upload("b.mp3", "two"),
		upload("a.MP3", "three"),
	})
	require.NoError(t, err)

	assert.Equal(t, "b1_converted.zip", result.Filename)
	assert.Equal(t, "converted 3 files", result.Message)
	assert.Equal(t, 3, result.FileCount)
	assert.Equal(t, []string{"b1_converted.zip"}, storage.keys())

	raw, _ := storage.get("b1_converted.zip")
	zr, err := zip.NewReader(bytes.NewReader([]byte(raw)), int64(len(raw)))
	require.NoError(t, err)
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		_ = rc.Close()
		got[f.Name] = string(b)
	}
	assert.Equal(t, map[string]string{"a.wav": "ONE", "b.wav": "TWO", "a_2.wav": "THREE"}, got)
}

func TestConvertRejectsWrongTypeBeforeWritingAnything(t *testing.T) {
	storage := newMemStorage()
	events := &publisherFake{}
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, events)

	_, err := uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{upload("a.mp3", "x"), upload("notes.txt", "y")})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
	assert.Contains(t, err.Error(), "files are not .mp3: notes.txt")
	assert.Empty(t, storage.keys())
	assert.Empty(t, events.events)
}

func TestConvertRejectsEmptyBatchAndOversizedFiles(t *testing.T) {
	storage := newMemStorage()
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, &publisherFake{})

	_, err := uc.Convert(context.Background(), "mp3-to-wav", nil)
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))

	big := domain.Upload{Filename: "big.mp3", Size: 101 * mb, Body: strings.NewReader("")}
	_, err = uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{big})
	assert.True(t, domain.IsKind(err, domain.ErrInvalidInput))
	assert.Contains(t, err.Error(), "files larger than 100MB: big.mp3")
}

func TestConvertTranscodeFailureCleansBatch(t *testing.T) {
	storage := newMemStorage()
	events := &publisherFake{}
	uc := newConvertUC(storage, &transcoderFake{storage: storage, failOn: "corrupt"}, events)

	_, err := uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{upload("a.mp3", "fine"), upload("b.mp3", "corrupt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "some files failed to convert")
	assert.Empty(t, storage.keys())
	assert.Empty(t, events.events)
}

func TestConvertUnknownAndUnimplementedTools(t *testing.T) {
	storage := newMemStorage()
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, &publisherFake{})

	_, err := uc.Convert(context.Background(), "nope", []domain.Upload{upload("a.mp3", "x")})
	assert.True(t, domain.IsKind(err, domain.ErrToolNotFound))

	_, err = uc.Convert(context.Background(), "pdf-merge", []domain.Upload{upload("a.pdf", "x")})
	assert.True(t, domain.IsKind(err, domain.ErrToolNotImplemented))
}

func TestConvertPublishFailureDoesNotFailBatch(t *testing.T) {
	storage := newMemStorage()
	uc := newConvertUC(storage, &transcoderFake{storage: storage}, &publisherFake{err: errors.New("nats down")})

	result, err := uc.Convert(context.Background(), "mp3-to-wav", []domain.Upload{upload("a.mp3", "x")})
	require.NoError(t, err)
	assert.Equal(t, "b1_a.wav", result.Filename)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "My_Song", sanitizeFilename("My Song"))
	assert.Equal(t, "歌曲", sanitizeFilename("歌曲"))
	assert.Equal(t, "a_b_c", sanitizeFilename("a&b*c"))
	assert.Equal(t, "audio", sanitizeFilename(""))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
}
