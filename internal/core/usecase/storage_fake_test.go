package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

const memRoot = "/mem/"

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) (int64, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return int64(len(raw)), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = raw
	return int64(len(raw)), nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	if !ok {
		return nil, 0, domain.WrapError(domain.ErrArtifactNotFound, "open", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), int64(len(raw)), nil
}

func (s *memStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[key]; !ok {
		return domain.WrapError(domain.ErrArtifactNotFound, "remove", errors.New(key))
	}
	delete(s.files, key)
	return nil
}

func (s *memStorage) Path(key string) (string, error) {
	if strings.Contains(key, "/") || strings.Contains(key, "..") {
		return "", domain.WrapError(domain.ErrForbidden, "path", fmt.Errorf("key %q", key))
	}
	return memRoot + key, nil
}

func (s *memStorage) put(key, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = []byte(body)
}

func (s *memStorage) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.files[key]
	return string(raw), ok
}

func (s *memStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.files))
	for k := range s.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
