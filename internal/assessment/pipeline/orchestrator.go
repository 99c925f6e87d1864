package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"social-support-workers/internal/assessment/decision"
	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/assessment/extract"
	"social-support-workers/internal/assessment/recommendation"
	"social-support-workers/internal/assessment/signals"
	"social-support-workers/internal/assessment/validation"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/common/metrics"
	"social-support-workers/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Stage string

const (
	StageExtracting   Stage = "extracting"
	StageAssessing    Stage = "assessing"
	StageRecommending Stage = "recommending"
	StageDeciding     Stage = "deciding"
)

var (
	ErrExtractorUnavailable   = errors.New("EXTRACTOR_UNAVAILABLE")
	ErrEligibilityUnavailable = errors.New("ELIGIBILITY_POLICY_UNAVAILABLE")
	ErrRecommenderUnavailable = errors.New("RECOMMENDATION_POLICY_UNAVAILABLE")
	ErrStagePanic             = errors.New("STAGE_PANIC")
)

// ApplicationInput is one submission. Values are not range checked.
type ApplicationInput struct {
	ApplicantID string   `json:"applicant_id"`
	Income      float64  `json:"income"`
	FamilySize  int      `json:"family_size"`
	Documents   []string `json:"documents"`
}

type StageReport struct {
	Stage    Stage  `json:"stage"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// DecisionResult is the terminal output of one run.
type DecisionResult struct {
	Eligibility    eligibility.Label `json:"eligibility"`
	Recommendation string            `json:"recommendation"`
	FinalDecision  string            `json:"final_decision"`
	ProcessedData  *Bundle           `json:"processed_data"`
	Stages         []StageReport     `json:"stages,omitempty"`
}

// DocumentExtractor is the full extraction path.
type DocumentExtractor interface {
	ExtractAll(ctx context.Context, refs []string) []extract.Document
}

// ImageRecognizer is the degraded, image-only path.
type ImageRecognizer interface {
	ExtractTexts(ctx context.Context, refs []string) []extract.OCRText
}

type Assessor interface {
	Assess(income float64, familySize int) eligibility.Label
}

type Recommender interface {
	Evaluate(s recommendation.Signals) recommendation.Outcome
}

type Options struct {
	Extractor      DocumentExtractor
	ImageOCR       ImageRecognizer
	Eligibility    Assessor
	Recommendation Recommender
	Observability  *observability.Observability
	Logger         logger.Logger
}

// Orchestrator runs extraction, assessment, recommendation and decision in
// order. A failing stage degrades to a conservative default; Run always
// returns a result.
type Orchestrator struct {
	extractor      DocumentExtractor
	imageOCR       ImageRecognizer
	eligibility    Assessor
	recommendation Recommender
	obs            *observability.Observability
	tracer         trace.Tracer
	logger         logger.Logger
}

func NewOrchestrator(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Orchestrator{
		extractor:      opts.Extractor,
		imageOCR:       opts.ImageOCR,
		eligibility:    opts.Eligibility,
		recommendation: opts.Recommendation,
		obs:            opts.Observability,
		tracer:         opts.Observability.Tracer(),
		logger:         log,
	}
}

func (o *Orchestrator) Run(ctx context.Context, in ApplicationInput) *DecisionResult {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("applicant_id", in.ApplicantID),
		attribute.Int("documents", len(in.Documents)),
	))
	defer span.End()

	log := o.logger.WithFields(map[string]interface{}{"applicantId": in.ApplicantID})
	if in.Income < 0 || in.FamilySize < 1 {
		log.Warn("Suspicious application inputs", map[string]interface{}{
			"income":      in.Income,
			"family_size": in.FamilySize,
		})
	}

	bundle := NewBundle(log)
	bundle.SetDocuments(in.Documents)
	bundle.SetEligibilityInputs(EligibilityInputs{Income: in.Income, FamilySize: in.FamilySize})

	result := &DecisionResult{ProcessedData: bundle}

	// Extracting
	report := o.runStage(ctx, log, StageExtracting, func(ctx context.Context) error {
		return o.extractFull(ctx, in, bundle)
	})
	if report.Degraded {
		o.extractDegraded(ctx, log, in, bundle)
	}
	result.Stages = append(result.Stages, report)

	// Assessing
	label := eligibility.Declined
	result.Stages = append(result.Stages, o.runStage(ctx, log, StageAssessing, func(context.Context) error {
		if o.eligibility == nil {
			return ErrEligibilityUnavailable
		}
		label = o.eligibility.Assess(in.Income, in.FamilySize)
		return nil
	}))
	if label != eligibility.Approved {
		label = eligibility.Declined
	}
	bundle.SetEligibility(label)

	// Recommending
	rec := recommendation.Outcome{Message: recommendation.MsgUnavailable}
	report = o.runStage(ctx, log, StageRecommending, func(context.Context) error {
		if o.recommendation == nil {
			return ErrRecommenderUnavailable
		}
		rec = o.recommendation.Evaluate(SignalsFrom(bundle))
		return nil
	})
	if report.Degraded {
		rec = recommendation.Outcome{Message: recommendation.MsgUnavailable}
	} else {
		bundle.SetRecommendationRule(rec.Rule)
	}
	result.Stages = append(result.Stages, report)

	// Deciding
	final := decision.Fallback
	result.Stages = append(result.Stages, o.runStage(ctx, log, StageDeciding, func(context.Context) error {
		final = decision.Assemble(label, rec.Message)
		return nil
	}))

	result.Eligibility = label
	result.Recommendation = rec.Message
	result.FinalDecision = final

	rule := string(rec.Rule)
	if rule == "" {
		rule = "unavailable"
	}
	metrics.PipelineDecisions.WithLabelValues(string(label), rule).Inc()
	o.obs.RecordPipelineRun(ctx, string(label), time.Since(start))
	span.SetAttributes(attribute.String("eligibility", string(label)), attribute.String("rule", rule))

	log.Info("Pipeline run completed", map[string]interface{}{
		"eligibility":    string(label),
		"rule":           rule,
		"extractionMode": bundle.ExtractionMode(),
		"duration_ms":    time.Since(start).Milliseconds(),
	})

	return result
}

// runStage executes fn in its own span; errors and panics mark the stage as
// degraded instead of propagating.
func (o *Orchestrator) runStage(ctx context.Context, log logger.Logger, stage Stage, fn func(context.Context) error) (report StageReport) {
	ctx, span := o.tracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	report = StageReport{Stage: stage}
	defer func() {
		if r := recover(); r != nil {
			report.Degraded = true
			report.Error = fmt.Errorf("%w: %v", ErrStagePanic, r).Error()
		}
		outcome := "ok"
		if report.Degraded {
			outcome = "degraded"
			span.SetStatus(codes.Error, report.Error)
			log.Warn("Pipeline stage degraded", map[string]interface{}{
				"stage": string(stage),
				"error": report.Error,
			})
		}
		metrics.PipelineStageOutcomes.WithLabelValues(string(stage), outcome).Inc()
	}()

	if err := fn(ctx); err != nil {
		report.Degraded = true
		report.Error = err.Error()
	}
	return report
}

func (o *Orchestrator) extractFull(ctx context.Context, in ApplicationInput, bundle *Bundle) error {
	if o.extractor == nil {
		return ErrExtractorUnavailable
	}

	docs := o.extractor.ExtractAll(ctx, in.Documents)

	texts := make([]string, len(docs))
	summaries := make([]DocumentSummary, len(docs))
	var tabular []string
	for i, d := range docs {
		texts[i] = d.Text
		summaries[i] = DocumentSummary{
			Index:     d.Index,
			Source:    d.Source,
			MediaType: d.MediaType,
			Length:    d.Length(),
			Tabular:   d.Tabular,
		}
		if d.Err != nil {
			summaries[i].Error = d.Err.Error()
		}
		if d.Tabular && d.Text != "" {
			tabular = append(tabular, d.Text)
		}
	}

	bundle.SetExtractionMode(ModeFull)
	bundle.SetOCRTexts(texts)
	bundle.SetExtractedDocuments(summaries)
	o.deriveSignals(bundle, texts, tabular)
	return nil
}

// extractDegraded recovers what it can without the full extractor: OCR on
// inline images and financial tables carried inline as data URIs.
func (o *Orchestrator) extractDegraded(ctx context.Context, log logger.Logger, in ApplicationInput, bundle *Bundle) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Degraded extraction failed", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()

	texts := []string{}
	if o.imageOCR != nil {
		for _, t := range o.imageOCR.ExtractTexts(ctx, in.Documents) {
			texts = append(texts, t.Text)
		}
	}

	var tabular []string
	for i, ref := range in.Documents {
		if table, ok := inlineTable(ref); ok {
			tabular = append(tabular, table)
			log.Debug("Inline financial table recovered", map[string]interface{}{"index": i})
		}
	}

	bundle.SetExtractionMode(ModeDegraded)
	bundle.SetOCRTexts(texts)
	o.deriveSignals(bundle, texts, tabular)
}

func inlineTable(ref string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(ref), "data:") {
		return "", false
	}
	p, err := extract.DecodeDataURI(ref)
	if err != nil || !extract.IsTabular(p) {
		return "", false
	}
	if extract.IsSpreadsheet(p) {
		text, err := extract.SheetCSV(p.Data)
		if err != nil {
			return "", false
		}
		return text, true
	}
	return extract.DecodeText(p.Data), true
}

// deriveSignals fills resume, financial and validation data from texts.
// Whatever it fails to write stays at the bundle's zero default.
func (o *Orchestrator) deriveSignals(bundle *Bundle, texts, tables []string) {
	bundle.SetResumeData(signals.ParseResume(strings.Join(texts, "\n")))

	var fin signals.FinancialData
	for _, table := range tables {
		fin = fin.Add(signals.ParseFinancialTable(strings.NewReader(table), o.logger))
	}
	bundle.SetFinancialData(fin)

	bundle.SetValidation(validation.Validate(texts))
}

// SignalsFrom reads the recommendation inputs from b, using zero defaults
// for anything missing.
func SignalsFrom(b *Bundle) recommendation.Signals {
	inputs := b.EligibilityInputs()

	ocrLength := 0
	for _, t := range b.OCRTexts() {
		ocrLength += utf8.RuneCountInString(t)
	}

	return recommendation.Signals{
		Eligibility:     b.Eligibility(),
		Income:          inputs.Income,
		FamilySize:      inputs.FamilySize,
		DocumentCount:   len(b.Documents()),
		OCRTextLength:   ocrLength,
		EmploymentCount: b.ResumeData().EmploymentCount,
		NetWorth:        b.FinancialData().NetWorth,
	}
}
