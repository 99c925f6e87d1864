package validateapplication

import "regexp"

type Output struct {
	IsValid          bool                   `json:"isValid"`
	ValidatedData    map[string]interface{} `json:"validatedData"`
	ValidationErrors []ValidationError      `json:"validationErrors"`
	Warnings         []string               `json:"validationWarnings,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	// E.164: optional +, leading 1-9, 7-15 digits in total
	phoneRegex      = regexp.MustCompile(`^[\+]?[1-9][\d]{6,14}$`)
	phoneStripRegex = regexp.MustCompile(`[^\d\+]`)
)
