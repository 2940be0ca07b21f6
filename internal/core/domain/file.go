package domain

import (
	"fmt"
	"io"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const bytesPerMB = 1024 * 1024

// FileDescriptor is a read-only handle to a local file selected for conversion.
type FileDescriptor struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

type ValidationPolicy struct {
	AcceptedExtensions []string `json:"accept" yaml:"accept"`
	MaxSizeMB          int64    `json:"maxSizeMB" yaml:"maxSizeMB"`
}

func (p ValidationPolicy) MaxSizeBytes() int64 {
	return p.MaxSizeMB * bytesPerMB
}

func (p ValidationPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AcceptedExtensions,
			validation.Required,
			validation.Each(validation.Required, validation.By(dotPrefixed)),
		),
		validation.Field(&p.MaxSizeMB, validation.Required, validation.Min(int64(1))),
	)
}

func dotPrefixed(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, ".") || len(s) < 2 {
		return fmt.Errorf("extension %q must start with a dot", s)
	}
	return nil
}

// ValidationReport partitions a selection; every input lands in exactly one bucket.
type ValidationReport struct {
	Accepted          []FileDescriptor
	RejectedWrongType []string
	RejectedTooLarge  []string
}

func (r ValidationReport) Rejected() int {
	return len(r.RejectedWrongType) + len(r.RejectedTooLarge)
}

// Advisory renders the rejection buckets as user-facing text. Empty when nothing was rejected.
func (r ValidationReport) Advisory(maxSizeMB int64) string {
	var parts []string
	if len(r.RejectedWrongType) > 0 {
		parts = append(parts, "unsupported file type: "+strings.Join(r.RejectedWrongType, ", "))
	}
	if len(r.RejectedTooLarge) > 0 {
		parts = append(parts, fmt.Sprintf("files larger than %dMB: %s", maxSizeMB, strings.Join(r.RejectedTooLarge, ", ")))
	}
	return strings.Join(parts, "; ")
}
