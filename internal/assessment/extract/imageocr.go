package extract

import (
	"context"
	"fmt"
	"strings"

	"social-support-workers/internal/common/logger"
)

// OCRText is one successful recognition. Index points back at the input
// reference since skipped documents are dropped rather than padded.
type OCRText struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ImageOCR only looks at data URIs that declare an image media type.
type ImageOCR struct {
	recognizer Recognizer
	logger     logger.Logger
}

func NewImageOCR(recognizer Recognizer, log logger.Logger) *ImageOCR {
	return &ImageOCR{recognizer: recognizer, logger: log}
}

func (o *ImageOCR) ExtractTexts(ctx context.Context, refs []string) []OCRText {
	var out []OCRText
	for i, ref := range refs {
		text, ok := o.recognizeOne(ctx, i, ref)
		if ok {
			out = append(out, OCRText{Index: i, Text: text})
		}
	}
	return out
}

func (o *ImageOCR) recognizeOne(ctx context.Context, index int, ref string) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("OCR panicked, skipping document", map[string]interface{}{
				"index": index,
				"panic": fmt.Sprint(r),
			})
			text, ok = "", false
		}
	}()

	header, _, found := strings.Cut(ref, ",")
	if !found {
		o.logger.Warn("Malformed document reference, skipping", map[string]interface{}{"index": index})
		return "", false
	}

	mediaType, _ := parseDataHeader(header)
	if !strings.HasPrefix(mediaType, "image/") {
		o.logger.Debug("Non-image document skipped", map[string]interface{}{
			"index":     index,
			"mediaType": mediaType,
		})
		return "", false
	}

	if o.recognizer == nil {
		o.logger.Warn("No OCR engine configured, skipping image", map[string]interface{}{"index": index})
		return "", false
	}

	payload, err := DecodeDataURI(ref)
	if err != nil {
		o.logger.Warn("Image decode failed, skipping document", map[string]interface{}{
			"index": index,
			"error": err.Error(),
		})
		return "", false
	}

	text, err = o.recognizer.Recognize(ctx, payload.Data)
	if err != nil {
		o.logger.Warn("OCR failed, skipping document", map[string]interface{}{
			"index": index,
			"error": err.Error(),
		})
		return "", false
	}
	return strings.TrimSpace(text), true
}
