package converter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/resilience"
)

func memFile(name, content string) domain.FileDescriptor {
	return domain.FileDescriptor{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

type progressLog struct {
	mu     sync.Mutex
	values []int
}

func (p *progressLog) record(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func (p *progressLog) snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func TestSubmitSendsMultipartBatch(t *testing.T) {
	var (
		mu       sync.Mutex
		names    []string
		contents []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/convert/mp3-to-wav" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, fh := range r.MultipartForm.File["files"] {
			names = append(names, fh.Filename)
			f, _ := fh.Open()
			raw, _ := io.ReadAll(f)
			_ = f.Close()
			contents = append(contents, string(raw))
		}
		_, _ = w.Write([]byte(`{"status":"success","downloadUrl":"/api/download/b_song.wav","message":"conversion succeeded","filename":"b_song.wav","fileCount":1}`))
	}))
	defer server.Close()

	progress := &progressLog{}
	client := New(server.URL, "/api/convert/mp3-to-wav", Options{})
	outcome := client.Submit(context.Background(), []domain.FileDescriptor{memFile("song.mp3", "abc"), memFile("two.mp3", "defgh")}, progress.record)

	if !outcome.OK() {
		t.Fatalf("expected success, got %+v", outcome.Failure)
	}
	if outcome.Success.ArtifactRef != "/api/download/b_song.wav" || outcome.Success.SuggestedFilename != "b_song.wav" {
		t.Fatalf("unexpected success payload: %+v", outcome.Success)
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(names, ",") != "song.mp3,two.mp3" || strings.Join(contents, ",") != "abc,defgh" {
		t.Fatalf("unexpected parts: names=%v contents=%v", names, contents)
	}

	values := progress.snapshot()
	if len(values) == 0 || values[len(values)-1] != 50 {
		t.Fatalf("expected progress to end at 50, got %v", values)
	}
	for _, v := range values {
		if v < 0 || v > 50 {
			t.Fatalf("progress %d outside upload band: %v", v, values)
		}
	}
}

func TestSubmitSurfacesStructuredErrorVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"files are not .mp3: notes.txt"}`))
	}))
	defer server.Close()

	outcome := New(server.URL, "/convert", Options{}).Submit(context.Background(), []domain.FileDescriptor{memFile("notes.mp3", "x")}, nil)
	if outcome.OK() {
		t.Fatalf("expected failure")
	}
	if outcome.Failure.Reason != "files are not .mp3: notes.txt" {
		t.Fatalf("unexpected reason %q", outcome.Failure.Reason)
	}
	if !domain.IsKind(outcome.Failure.Err, domain.ErrRemoteRejection) {
		t.Fatalf("expected remote rejection kind, got %v", outcome.Failure.Err)
	}
}

func TestSubmitSurfacesDetailPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"failed to create archive"}`))
	}))
	defer server.Close()

	outcome := New(server.URL, "/convert", Options{}).Submit(context.Background(), []domain.FileDescriptor{memFile("a.mp3", "x")}, nil)
	if outcome.OK() || outcome.Failure.Reason != "failed to create archive" {
		t.Fatalf("unexpected outcome: %+v", outcome.Failure)
	}
}

func TestSubmitNon2xxWithoutBodyIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	outcome := New(server.URL, "/convert", Options{}).Submit(context.Background(), []domain.FileDescriptor{memFile("a.mp3", "x")}, nil)
	if outcome.OK() {
		t.Fatalf("expected failure")
	}
	if outcome.Failure.Reason != reasonTransport {
		t.Fatalf("expected generic reason, got %q", outcome.Failure.Reason)
	}
	if !domain.IsKind(outcome.Failure.Err, domain.ErrTransport) {
		t.Fatalf("expected transport kind, got %v", outcome.Failure.Err)
	}
}

func TestSubmitSuccessWithoutDownloadURLIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"status":"success","message":"conversion succeeded"}`))
	}))
	defer server.Close()

	outcome := New(server.URL, "/convert", Options{}).Submit(context.Background(), []domain.FileDescriptor{memFile("a.mp3", "x")}, nil)
	if outcome.OK() {
		t.Fatalf("success without downloadUrl must be a failure")
	}
	if !domain.IsKind(outcome.Failure.Err, domain.ErrMalformedSuccess) {
		t.Fatalf("expected malformed success kind, got %v", outcome.Failure.Err)
	}
}

func TestSubmitErrorStatusWith200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"status":"error","message":"quota exceeded"}`))
	}))
	defer server.Close()

	outcome := New(server.URL, "/convert", Options{}).Submit(context.Background(), []domain.FileDescriptor{memFile("a.mp3", "x")}, nil)
	if outcome.OK() || outcome.Failure.Reason != "quota exceeded" {
		t.Fatalf("unexpected outcome: %+v", outcome.Failure)
	}
}

func TestSubmitTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := New(server.URL, "/convert", Options{Timeout: 50 * time.Millisecond})
	outcome := client.Submit(context.Background(), []domain.FileDescriptor{memFile("a.mp3", "x")}, nil)
	if outcome.OK() {
		t.Fatalf("expected failure on timeout")
	}
	if outcome.Failure.Reason != reasonTimeout {
		t.Fatalf("expected timeout reason, got %q", outcome.Failure.Reason)
	}
}

func TestSubmitFailsFastWhenCircuitOpen(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	guard := resilience.NewGuard(resilience.Config{
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})
	client := New(server.URL, "/convert", Options{Guard: guard})
	files := []domain.FileDescriptor{memFile("a.mp3", "x")}

	for i := 0; i < 3; i++ {
		if outcome := client.Submit(context.Background(), files, nil); outcome.OK() {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected circuit to stop the third call, got %d calls", calls.Load())
	}
}

func TestSubmitEmptyBatch(t *testing.T) {
	outcome := New("http://127.0.0.1:0", "/convert", Options{}).Submit(context.Background(), nil, nil)
	if outcome.OK() || !domain.IsKind(outcome.Failure.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input failure, got %+v", outcome)
	}
}
