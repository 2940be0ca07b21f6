package zipper

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

// Zipper streams entries into a zip archive. Entries are stored with Deflate.
type Zipper struct {
	now func() time.Time
}

func New() *Zipper {
	return &Zipper{now: time.Now}
}

func (z *Zipper) Write(ctx context.Context, dst io.Writer, entries []ports.ArchiveEntry) error {
	zw := zip.NewWriter(dst)
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		if _, dup := seen[entry.Name]; dup {
			_ = zw.Close()
			return fmt.Errorf("duplicate archive entry %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}

		if err := z.writeEntry(zw, entry); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func (z *Zipper) writeEntry(zw *zip.Writer, entry ports.ArchiveEntry) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry.Name,
		Method:   zip.Deflate,
		Modified: z.now(),
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", entry.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write %s: %w", entry.Name, err)
	}
	return nil
}
