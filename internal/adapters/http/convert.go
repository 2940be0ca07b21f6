package httpadapter

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

const (
	uploadField     = "files"
	multipartMemory = 32 << 20
)

func (rt *Router) convert(w http.ResponseWriter, r *http.Request) {
	toolID := r.PathValue("tool")
	if rt.cfg.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.MaxUploadMB)<<20)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			closeAll(uploads)
			writeError(w, http.StatusBadRequest, "cannot read uploaded file "+fh.Filename)
			return
		}
		uploads = append(uploads, domain.Upload{Filename: fh.Filename, Size: fh.Size, Body: file})
	}
	defer closeAll(uploads)

	start := time.Now()
	result, err := rt.converter.Convert(r.Context(), toolID, uploads)
	if rt.metrics != nil {
		count := 0
		if result != nil {
			count = result.FileCount
		}
		rt.metrics.RecordConversion(serviceName, toolID, count, time.Since(start), err)
	}
	if err != nil {
		slog.Error("conversion_failed",
			"request_id", requestIDFromContext(r.Context()),
			"tool", toolID,
			"files", len(uploads),
			"error", err,
		)
		writeDomainError(w, err)
		return
	}

	slog.Info("conversion_completed",
		"request_id", requestIDFromContext(r.Context()),
		"tool", toolID,
		"batch_id", result.BatchID,
		"filename", result.Filename,
		"file_count", result.FileCount,
	)
	writeJSON(w, http.StatusOK, result)
}

func closeAll(uploads []domain.Upload) {
	for _, upload := range uploads {
		if f, ok := upload.Body.(multipart.File); ok {
			_ = f.Close()
		}
	}
}
