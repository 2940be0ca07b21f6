package converter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
)

const (
	uploadBand       = 50
	maxResponseBytes = 1 << 20
)

func (c *Client) postMultipart(ctx context.Context, files []domain.FileDescriptor, onProgress ports.ProgressFunc, out *convertResponse) error {
	pr, pw := io.Pipe()
	defer pr.Close()

	mw := multipart.NewWriter(pw)
	tracker := newUploadTracker(files, onProgress)
	go func() {
		pw.CloseWithError(writeParts(mw, files, tracker))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoint, pr)
	if err != nil {
		return fmt.Errorf("create convert request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("convert request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read convert response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{
			Operation:  "convert",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.WrapError(domain.ErrMalformedSuccess, "decode convert response", err)
	}
	return nil
}

func writeParts(mw *multipart.Writer, files []domain.FileDescriptor, tracker *uploadTracker) error {
	for _, file := range files {
		part, err := mw.CreateFormFile("files", file.Name)
		if err != nil {
			return fmt.Errorf("create form part %q: %w", file.Name, err)
		}
		if err := copyFile(part, file, tracker); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}
	tracker.complete()
	return nil
}

func copyFile(dst io.Writer, file domain.FileDescriptor, tracker *uploadTracker) error {
	if file.Open == nil {
		return fmt.Errorf("file %q has no content", file.Name)
	}
	rc, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %q: %w", file.Name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(sentCounter{w: dst, tracker: tracker}, rc); err != nil {
		return fmt.Errorf("upload %q: %w", file.Name, err)
	}
	return nil
}

// sentCounter credits the tracker only with bytes the pipe reader has taken.
type sentCounter struct {
	w       io.Writer
	tracker *uploadTracker
}

func (c sentCounter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.tracker.add(n)
	return n, err
}

// uploadTracker maps bytes handed to the transport onto [0,50] and reports only changes.
type uploadTracker struct {
	total  int64
	sent   int64
	last   int
	report ports.ProgressFunc
}

func newUploadTracker(files []domain.FileDescriptor, report ports.ProgressFunc) *uploadTracker {
	var total int64
	for _, f := range files {
		total += max(f.Size, 0)
	}
	return &uploadTracker{total: total, last: -1, report: report}
}

func (t *uploadTracker) add(n int) {
	if n <= 0 {
		return
	}
	t.sent += int64(n)
	if t.total > 0 {
		t.emit(int(math.Round(float64(min(t.sent, t.total)) * uploadBand / float64(t.total))))
	}
}

func (t *uploadTracker) complete() {
	t.emit(uploadBand)
}

func (t *uploadTracker) emit(progress int) {
	if progress == t.last {
		return
	}
	t.last = progress
	t.report.Report(progress)
}
