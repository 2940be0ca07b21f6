package httpadapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

func (rt *Router) download(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	artifact, body, err := rt.artifacts.Fetch(r.Context(), filename)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordDownload(serviceName, "error")
		}
		slog.Warn("artifact_fetch_failed",
			"request_id", requestIDFromContext(r.Context()),
			"filename", filename,
			"error", err,
		)
		writeDomainError(w, err)
		return
	}
	defer body.Close()
	// artifacts are single-download; cleanup runs even when the client goes away
	defer rt.artifacts.Release(context.WithoutCancel(r.Context()), artifact.Key)

	h := w.Header()
	h.Set("Content-Type", artifact.MimeType)
	h.Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	h.Set("Content-Disposition", "attachment; filename*=UTF-8''"+encodeRFC5987(artifact.DownloadName))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, body)
	status := "success"
	if err != nil {
		status = "aborted"
		slog.Warn("artifact_stream_aborted", "filename", filename, "bytes", n, "error", err)
	}
	if rt.metrics != nil {
		rt.metrics.RecordDownload(serviceName, status)
	}
}

// encodeRFC5987 percent-encodes everything outside the attr-char set.
func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
