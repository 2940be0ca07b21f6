package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const DefaultCleanupDelay = 100 * time.Millisecond

type Options struct {
	HTTPClient   *http.Client
	CleanupDelay time.Duration
	Logger       *slog.Logger
}

// Saver fetches triggered artifacts into a local directory in the background.
type Saver struct {
	dir          string
	httpClient   *http.Client
	cleanupDelay time.Duration
	logger       *slog.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	saved []string
	errs  []error
}

func NewSaver(dir string, opts Options) (*Saver, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	delay := opts.CleanupDelay
	if delay <= 0 {
		delay = DefaultCleanupDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{dir: dir, httpClient: httpClient, cleanupDelay: delay, logger: logger}, nil
}

// Trigger returns immediately; the transfer runs on its own goroutine.
func (s *Saver) Trigger(url, suggestedFilename string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		path, err := s.fetch(context.Background(), url, suggestedFilename)
		time.AfterFunc(s.cleanupDelay, s.httpClient.CloseIdleConnections)

		s.mu.Lock()
		if err != nil {
			s.errs = append(s.errs, err)
		} else {
			s.saved = append(s.saved, path)
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("download_failed", "url", url, "filename", suggestedFilename, "error", err)
			return
		}
		s.logger.Info("download_saved", "url", url, "path", path)
	}()
}

func (s *Saver) fetch(ctx context.Context, url, suggestedFilename string) (string, error) {
	name := safeName(suggestedFilename)
	target := filepath.Join(s.dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	partial := target + ".part"
	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", partial, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(partial)
		return "", fmt.Errorf("write %s: %w", partial, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("close %s: %w", partial, err)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("rename %s: %w", partial, err)
	}
	return target, nil
}

// Wait blocks until every triggered download has finished and returns their joined errors.
func (s *Saver) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

func (s *Saver) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

func safeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "" || base == "." || base == ".." || base == "/" {
		return "download"
	}
	return base
}
