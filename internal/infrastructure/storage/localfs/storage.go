package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

// Storage keeps artifacts as flat files under a single directory.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: abs}, nil
}

// Path resolves key inside the storage directory and rejects keys that escape it.
func (s *Storage) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", domain.WrapError(domain.ErrForbidden, "storage path", fmt.Errorf("invalid key %q", key))
	}
	path := filepath.Join(s.basePath, key)
	if !strings.HasPrefix(path, s.basePath+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrForbidden, "storage path", fmt.Errorf("key %q escapes storage", key))
	}
	return path, nil
}

// Save writes data to a temp file and renames it into place, so readers never see partial artifacts.
func (s *Storage) Save(ctx context.Context, key string, data io.Reader) (int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: data})
	if err != nil {
		_ = tmp.Close()
		cleanup()
		return n, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return n, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return n, fmt.Errorf("rename file: %w", err)
	}
	return n, nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, domain.WrapError(domain.ErrArtifactNotFound, "storage open", err)
		}
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, domain.WrapError(domain.ErrArtifactNotFound, "storage open", fmt.Errorf("%q is a directory", key))
	}
	return f, info.Size(), nil
}

func (s *Storage) Remove(_ context.Context, key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.WrapError(domain.ErrArtifactNotFound, "storage remove", err)
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Describe builds a descriptor for a file on local disk. The file is reopened on every Open call.
func Describe(path string) (domain.FileDescriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.FileDescriptor{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.FileDescriptor{}, domain.WrapError(domain.ErrInvalidInput, "describe file", fmt.Errorf("%s is a directory", path))
	}
	return domain.FileDescriptor{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
