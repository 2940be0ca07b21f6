package httpadapter

import (
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrArtifactNotFound), domain.IsKind(err, domain.ErrToolNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrToolNotImplemented):
		return http.StatusNotImplemented
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var publicKinds = []error{
	domain.ErrInvalidInput,
	domain.ErrForbidden,
	domain.ErrArtifactNotFound,
	domain.ErrToolNotFound,
	domain.ErrToolNotImplemented,
}

// publicMessage drops the operation prefix that domain.WrapError adds in front of typed errors.
func publicMessage(err error) string {
	msg := err.Error()
	for _, kind := range publicKinds {
		if !domain.IsKind(err, kind) {
			continue
		}
		if _, detail, ok := strings.Cut(msg, kind.Error()+": "); ok && detail != "" {
			return detail
		}
		return kind.Error()
	}
	return msg
}
