package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrTemporary          = errors.New("temporary failure")
	ErrRunInProgress      = errors.New("conversion already in progress")
	ErrToolNotImplemented = errors.New("tool not implemented")
	ErrToolNotFound       = errors.New("tool not found")
	ErrArtifactNotFound   = errors.New("artifact not found")
	ErrForbidden          = errors.New("forbidden")

	ErrTransport        = errors.New("transport failure")
	ErrRemoteRejection  = errors.New("remote rejected conversion")
	ErrMalformedSuccess = errors.New("malformed success response")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
