package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"social-support-workers/internal/common/logger"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Recognizer performs optical character recognition on image bytes.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Extractor turns raw document bytes into text. Extract never fails: each
// strategy that errors or panics hands over to the next one.
type Extractor struct {
	recognizer Recognizer
	logger     logger.Logger
}

// NewExtractor builds an extractor; recognizer may be nil to disable OCR.
func NewExtractor(recognizer Recognizer, log logger.Logger) *Extractor {
	return &Extractor{recognizer: recognizer, logger: log}
}

type strategy struct {
	name string
	fn   func(context.Context, Payload) (string, bool)
}

func (e *Extractor) Extract(ctx context.Context, p Payload) string {
	strategies := []strategy{
		{"pdf", e.pdfText},
		{"spreadsheet", e.spreadsheetText},
		{"ocr", e.ocrText},
	}
	for _, s := range strategies {
		if text, ok := e.try(ctx, s, p); ok {
			return text
		}
	}
	return DecodeText(p.Data)
}

func (e *Extractor) try(ctx context.Context, s strategy, p Payload) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Extraction strategy panicked", map[string]interface{}{
				"strategy": s.name,
				"panic":    fmt.Sprint(r),
			})
			text, ok = "", false
		}
	}()
	return s.fn(ctx, p)
}

func (e *Extractor) pdfText(_ context.Context, p Payload) (string, bool) {
	if !bytes.HasPrefix(p.Data, []byte("%PDF-")) && p.MediaType != "application/pdf" {
		return "", false
	}
	text, err := PDFText(p.Data)
	if err != nil {
		e.logger.Debug("PDF text extraction failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	return text, text != ""
}

func (e *Extractor) spreadsheetText(_ context.Context, p Payload) (string, bool) {
	if !IsSpreadsheet(p) {
		return "", false
	}
	text, err := SheetCSV(p.Data)
	if err != nil {
		e.logger.Debug("Spreadsheet extraction failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	return text, text != ""
}

func (e *Extractor) ocrText(ctx context.Context, p Payload) (string, bool) {
	if e.recognizer == nil || !IsImage(p) {
		return "", false
	}
	text, err := e.recognizer.Recognize(ctx, p.Data)
	if err != nil {
		e.logger.Debug("OCR failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// PDFText returns the plain text of every page, trimmed.
func PDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	if r.NumPage() == 0 {
		return "", nil
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SheetCSV renders the first worksheet of an xlsx workbook as CSV text.
func SheetCSV(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("render csv: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// IsImage reports whether the declared or sniffed media type is an image.
func IsImage(p Payload) bool {
	if strings.HasPrefix(p.MediaType, "image/") {
		return true
	}
	return strings.HasPrefix(http.DetectContentType(p.Data), "image/")
}

var spreadsheetTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/vnd.ms-excel":                                          true,
}

func IsSpreadsheet(p Payload) bool {
	if spreadsheetTypes[p.MediaType] {
		return true
	}
	name := strings.ToLower(p.Name)
	if strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xls") {
		return true
	}
	// xlsx is a zip container
	return bytes.HasPrefix(p.Data, []byte("PK\x03\x04")) && p.Source != SourceRaw
}

// IsTabular reports whether p holds a financial table (CSV or spreadsheet).
func IsTabular(p Payload) bool {
	if p.MediaType == "text/csv" || IsSpreadsheet(p) {
		return true
	}
	return strings.HasSuffix(strings.ToLower(p.Name), ".csv")
}

// DecodeText is the last-resort decode: invalid UTF-8 sequences are dropped.
func DecodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
