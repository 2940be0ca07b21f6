package converter

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

// stallingWriter accepts at most limit bytes, then fails like a closed pipe.
type stallingWriter struct {
	limit    int
	accepted int
}

func (w *stallingWriter) Write(p []byte) (int, error) {
	n := min(len(p), w.limit-w.accepted)
	w.accepted += n
	if n < len(p) {
		return n, io.ErrClosedPipe
	}
	return n, nil
}

func TestCopyFileReportsOnlyBytesTheTransportTook(t *testing.T) {
	log := &progressLog{}
	file := memFile("a.mp3", strings.Repeat("x", 100))
	tracker := newUploadTracker([]domain.FileDescriptor{file}, log.record)

	err := copyFile(&stallingWriter{limit: 0}, file, tracker)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected closed pipe, got %v", err)
	}
	if got := log.snapshot(); len(got) != 0 {
		t.Fatalf("expected no progress before any byte was sent, got %v", got)
	}
}

func TestCopyFileReportsPartialTransfer(t *testing.T) {
	log := &progressLog{}
	file := memFile("a.mp3", strings.Repeat("x", 100))
	tracker := newUploadTracker([]domain.FileDescriptor{file}, log.record)

	_ = copyFile(&stallingWriter{limit: 40}, file, tracker)
	got := log.snapshot()
	if len(got) != 1 || got[0] != 20 {
		t.Fatalf("expected progress [20] after 40 of 100 bytes, got %v", got)
	}
}
