// Package tesseract adapts gosseract to the extract.Recognizer interface. It
// links against libtesseract, so it is kept apart from the extract package.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

type Recognizer struct {
	languages      []string
	tessdataPrefix string
}

func New(languages []string, tessdataPrefix string) *Recognizer {
	return &Recognizer{languages: languages, tessdataPrefix: tessdataPrefix}
}

// Recognize runs one tesseract client per call; clients are not safe for
// concurrent use.
func (r *Recognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if r.tessdataPrefix != "" {
		client.SetTessdataPrefix(r.tessdataPrefix)
	}
	if len(r.languages) > 0 {
		if err := client.SetLanguage(r.languages...); err != nil {
			return "", fmt.Errorf("failed to set language: %w", err)
		}
	}

	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}
