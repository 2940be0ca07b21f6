package converter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "converter status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("converter %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("converter %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// RemoteMessage extracts the human-readable message of a structured error payload,
// either {"status":"error","message":...} or {"detail":"..."}. Empty when the body is
// not such a payload.
func (e *HTTPStatusError) RemoteMessage() string {
	if e == nil || strings.TrimSpace(e.Body) == "" {
		return ""
	}
	var payload struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	var detail string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil {
		return strings.TrimSpace(detail)
	}
	return ""
}

// recordsFailure decides which errors count against the breaker: transport faults and
// server-side 5xx do, caller cancellation and 4xx rejections do not.
func recordsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if resilience.IsCircuitOpen(err) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return isBackendFault(statusErr.StatusCode)
	}
	if domain.IsKind(err, domain.ErrMalformedSuccess) {
		return false
	}
	return true
}

func isBackendFault(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
