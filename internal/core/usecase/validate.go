package usecase

import (
	"strings"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
)

// ValidateFiles splits a selection into accepted files and rejected names.
// The type check runs before the size check, so a file is rejected for one reason at most.
func ValidateFiles(files []domain.FileDescriptor, policy domain.ValidationPolicy) domain.ValidationReport {
	report := domain.ValidationReport{}
	maxBytes := policy.MaxSizeBytes()

	for _, file := range files {
		if !hasAcceptedExtension(file.Name, policy.AcceptedExtensions) {
			report.RejectedWrongType = append(report.RejectedWrongType, file.Name)
			continue
		}
		if file.Size > maxBytes {
			report.RejectedTooLarge = append(report.RejectedTooLarge, file.Name)
			continue
		}
		report.Accepted = append(report.Accepted, file)
	}
	return report
}

func hasAcceptedExtension(name string, accepted []string) bool {
	ext := fileExtension(name)
	if ext == "" {
		return false
	}
	for _, candidate := range accepted {
		if strings.EqualFold(strings.TrimSpace(candidate), ext) {
			return true
		}
	}
	return false
}

// fileExtension returns the dot-prefixed substring after the last dot, or "" when there is none.
func fileExtension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx:]
}

// replaceExtension swaps the extension of name for ext, appending ext when name has none.
func replaceExtension(name, ext string) string {
	if current := fileExtension(name); current != "" {
		return name[:len(name)-len(current)] + ext
	}
	return name + ext
}
