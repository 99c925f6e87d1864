package pipeline

import (
	"encoding/json"
	"fmt"
	"sync"

	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/assessment/recommendation"
	"social-support-workers/internal/assessment/signals"
	"social-support-workers/internal/assessment/validation"
	"social-support-workers/internal/common/logger"
)

// Bundle keys, as they appear in the serialized processed data.
const (
	KeyDocuments          = "documents"
	KeyOCRTexts           = "ocr_texts"
	KeyExtractedDocuments = "extracted_documents"
	KeyExtractionMode     = "extraction_mode"
	KeyValidation         = "validation"
	KeyEligibilityInputs  = "eligibility_inputs"
	KeyEligibility        = "eligibility"
	KeyResumeData         = "resume_data"
	KeyFinancialData      = "financial_data"
	KeyRecommendationRule = "recommendation_rule"
)

const (
	ModeFull     = "full"
	ModeDegraded = "degraded"
)

type EligibilityInputs struct {
	Income     float64 `json:"income"`
	FamilySize int     `json:"family_size"`
}

// DocumentSummary is the audit view of one extracted document.
type DocumentSummary struct {
	Index     int    `json:"index"`
	Source    string `json:"source,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Length    int    `json:"length"`
	Tabular   bool   `json:"tabular,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Bundle accumulates what each stage derives. Every field can be written
// exactly once; readers get zero values for anything not yet written.
type Bundle struct {
	mu      sync.RWMutex
	written map[string]bool
	logger  logger.Logger

	documents          []string
	ocrTexts           []string
	extractedDocuments []DocumentSummary
	extractionMode     string
	validation         validation.Report
	eligibilityInputs  EligibilityInputs
	eligibility        eligibility.Label
	resumeData         signals.ResumeData
	financialData      signals.FinancialData
	recommendationRule recommendation.Rule
}

func NewBundle(log logger.Logger) *Bundle {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Bundle{written: map[string]bool{}, logger: log}
}

func setOnce[T any](b *Bundle, key string, dst *T, v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.written == nil {
		b.written = map[string]bool{}
	}
	if b.written[key] {
		if b.logger != nil {
			b.logger.Debug("Bundle key already written, ignoring", map[string]interface{}{"key": key})
		}
		return false
	}
	*dst = v
	b.written[key] = true
	return true
}

func get[T any](b *Bundle, v *T) T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *v
}

// Has reports whether key has been written.
func (b *Bundle) Has(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.written[key]
}

func (b *Bundle) SetDocuments(docs []string) bool {
	return setOnce(b, KeyDocuments, &b.documents, append([]string(nil), docs...))
}

func (b *Bundle) SetOCRTexts(texts []string) bool {
	return setOnce(b, KeyOCRTexts, &b.ocrTexts, append(make([]string, 0, len(texts)), texts...))
}

func (b *Bundle) SetExtractedDocuments(docs []DocumentSummary) bool {
	return setOnce(b, KeyExtractedDocuments, &b.extractedDocuments, append([]DocumentSummary(nil), docs...))
}

func (b *Bundle) SetExtractionMode(mode string) bool {
	return setOnce(b, KeyExtractionMode, &b.extractionMode, mode)
}

func (b *Bundle) SetValidation(r validation.Report) bool {
	return setOnce(b, KeyValidation, &b.validation, r)
}

func (b *Bundle) SetEligibilityInputs(in EligibilityInputs) bool {
	return setOnce(b, KeyEligibilityInputs, &b.eligibilityInputs, in)
}

func (b *Bundle) SetEligibility(label eligibility.Label) bool {
	return setOnce(b, KeyEligibility, &b.eligibility, label)
}

func (b *Bundle) SetResumeData(d signals.ResumeData) bool {
	return setOnce(b, KeyResumeData, &b.resumeData, d)
}

func (b *Bundle) SetFinancialData(d signals.FinancialData) bool {
	return setOnce(b, KeyFinancialData, &b.financialData, d)
}

func (b *Bundle) SetRecommendationRule(r recommendation.Rule) bool {
	return setOnce(b, KeyRecommendationRule, &b.recommendationRule, r)
}

func (b *Bundle) Documents() []string {
	return append([]string(nil), get(b, &b.documents)...)
}

func (b *Bundle) OCRTexts() []string {
	texts := get(b, &b.ocrTexts)
	if texts == nil {
		return nil
	}
	return append(make([]string, 0, len(texts)), texts...)
}

func (b *Bundle) ExtractedDocuments() []DocumentSummary {
	return append([]DocumentSummary(nil), get(b, &b.extractedDocuments)...)
}

func (b *Bundle) ExtractionMode() string {
	return get(b, &b.extractionMode)
}

func (b *Bundle) Validation() validation.Report {
	return get(b, &b.validation)
}

func (b *Bundle) EligibilityInputs() EligibilityInputs {
	return get(b, &b.eligibilityInputs)
}

func (b *Bundle) Eligibility() eligibility.Label {
	return get(b, &b.eligibility)
}

func (b *Bundle) ResumeData() signals.ResumeData {
	return get(b, &b.resumeData)
}

func (b *Bundle) FinancialData() signals.FinancialData {
	return get(b, &b.financialData)
}

func (b *Bundle) RecommendationRule() recommendation.Rule {
	return get(b, &b.recommendationRule)
}

// MarshalJSON emits only the keys that were written, as an open mapping.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]interface{}, len(b.written))
	for key := range b.written {
		switch key {
		case KeyDocuments:
			out[key] = b.documents
		case KeyOCRTexts:
			out[key] = b.ocrTexts
		case KeyExtractedDocuments:
			out[key] = b.extractedDocuments
		case KeyExtractionMode:
			out[key] = b.extractionMode
		case KeyValidation:
			out[key] = b.validation
		case KeyEligibilityInputs:
			out[key] = b.eligibilityInputs
		case KeyEligibility:
			out[key] = b.eligibility
		case KeyResumeData:
			out[key] = b.resumeData
		case KeyFinancialData:
			out[key] = b.financialData
		case KeyRecommendationRule:
			out[key] = b.recommendationRule
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a bundle written by MarshalJSON, e.g. from the
// decision cache. Unknown keys are ignored.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if b.written == nil {
		b.written = map[string]bool{}
	}

	decode := func(key string, dst interface{}) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(msg, dst); err != nil {
			return fmt.Errorf("bundle key %s: %w", key, err)
		}
		b.written[key] = true
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for key, dst := range map[string]interface{}{
		KeyDocuments:          &b.documents,
		KeyOCRTexts:           &b.ocrTexts,
		KeyExtractedDocuments: &b.extractedDocuments,
		KeyExtractionMode:     &b.extractionMode,
		KeyValidation:         &b.validation,
		KeyEligibilityInputs:  &b.eligibilityInputs,
		KeyEligibility:        &b.eligibility,
		KeyResumeData:         &b.resumeData,
		KeyFinancialData:      &b.financialData,
		KeyRecommendationRule: &b.recommendationRule,
	} {
		if err := decode(key, dst); err != nil {
			return err
		}
	}
	return nil
}
