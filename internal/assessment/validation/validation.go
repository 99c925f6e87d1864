package validation

import (
	"strings"
	"unicode"
)

const (
	ErrNoText    = "No text extracted from any document."
	ErrNoNumbers = "No numeric data found in documents."
)

// Report describes the quality of the extracted texts. It is advisory and
// never stops a pipeline run.
type Report struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

func Validate(texts []string) Report {
	errs := []string{}

	combined := strings.TrimSpace(strings.Join(texts, " "))
	if combined == "" {
		errs = append(errs, ErrNoText)
	}
	if !strings.ContainsFunc(combined, unicode.IsDigit) {
		errs = append(errs, ErrNoNumbers)
	}

	return Report{OK: len(errs) == 0, Errors: errs}
}
