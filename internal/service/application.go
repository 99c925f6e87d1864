package service

import (
	"context"
	"encoding/json"
	"time"

	"social-support-workers/internal/assessment/pipeline"
	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"
	"social-support-workers/internal/repository"
)

type ApplicantStore interface {
	EnsureApplicant(ctx context.Context, applicantID string) (bool, error)
}

type ApplicationStore interface {
	Create(ctx context.Context, app models.Application) (*models.Application, error)
}

type DecisionIndex interface {
	Index(ctx context.Context, app *models.Application) error
}

type Pipeline interface {
	Run(ctx context.Context, in pipeline.ApplicationInput) *pipeline.DecisionResult
}

type ResultCache interface {
	Get(ctx context.Context, key string, dst interface{}) bool
	Put(ctx context.Context, key string, v interface{})
}

// Submission is what a caller gets back for one application.
type Submission struct {
	ApplicationID  string                   `json:"application_id"`
	Eligibility    string                   `json:"eligibility"`
	Recommendation string                   `json:"recommendation"`
	FinalDecision  string                   `json:"final_decision"`
	Result         *pipeline.DecisionResult `json:"-"`
	Cached         bool                     `json:"-"`
}

type ApplicationServiceOptions struct {
	Applicants   ApplicantStore
	Applications ApplicationStore
	Index        DecisionIndex
	Cache        ResultCache
	Pipeline     Pipeline
	Logger       logger.Logger
}

type ApplicationService struct {
	applicants   ApplicantStore
	applications ApplicationStore
	index        DecisionIndex
	cache        ResultCache
	pipeline     Pipeline
	logger       logger.Logger
}

func NewApplicationService(opts ApplicationServiceOptions) *ApplicationService {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ApplicationService{
		applicants:   opts.Applicants,
		applications: opts.Applications,
		index:        opts.Index,
		cache:        opts.Cache,
		pipeline:     opts.Pipeline,
		logger:       log,
	}
}

// Decide runs the pipeline for in, or returns a cached result for the same
// inputs. Degraded results are never cached.
func (s *ApplicationService) Decide(ctx context.Context, in pipeline.ApplicationInput) (*pipeline.DecisionResult, bool) {
	key := repository.DecisionKey(in.Income, in.FamilySize, in.Documents)
	if s.cache != nil {
		var cached pipeline.DecisionResult
		if s.cache.Get(ctx, key, &cached) && cached.ProcessedData != nil {
			s.logger.Debug("decision served from cache", map[string]interface{}{"applicantId": in.ApplicantID})
			return &cached, true
		}
	}

	res := s.pipeline.Run(ctx, in)
	if s.cache != nil && cacheable(res) {
		s.cache.Put(ctx, key, res)
	}
	return res, false
}

// cacheable reports whether every stage ran normally and every document was
// extracted.
func cacheable(res *pipeline.DecisionResult) bool {
	if res == nil || res.ProcessedData == nil {
		return false
	}
	for _, st := range res.Stages {
		if st.Degraded {
			return false
		}
	}
	for _, d := range res.ProcessedData.ExtractedDocuments() {
		if d.Error != "" {
			return false
		}
	}
	return true
}

// Submit ensures the applicant exists, decides, and persists the decision.
// Storage failures are returned; indexing failures are only logged.
func (s *ApplicationService) Submit(ctx context.Context, in pipeline.ApplicationInput) (*Submission, error) {
	log := s.logger.WithFields(map[string]interface{}{"applicantId": in.ApplicantID})
	start := time.Now()

	if _, err := s.applicants.EnsureApplicant(ctx, in.ApplicantID); err != nil {
		return nil, err
	}

	res, cached := s.Decide(ctx, in)

	app, err := s.Record(ctx, in, res)
	if err != nil {
		return nil, err
	}

	log.Info("application processed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"eligibility":   string(res.Eligibility),
		"cached":        cached,
		"duration_ms":   time.Since(start).Milliseconds(),
	})

	return &Submission{
		ApplicationID:  app.ApplicationID,
		Eligibility:    string(res.Eligibility),
		Recommendation: res.Recommendation,
		FinalDecision:  res.FinalDecision,
		Result:         res,
		Cached:         cached,
	}, nil
}

// Record persists a decision result and indexes it.
func (s *ApplicationService) Record(ctx context.Context, in pipeline.ApplicationInput, res *pipeline.DecisionResult) (*models.Application, error) {
	raw, err := json.Marshal(res.ProcessedData)
	if err != nil {
		return nil, commonerrors.NewInternalError(err)
	}

	app, err := s.applications.Create(ctx, models.Application{
		ApplicantID:    in.ApplicantID,
		Income:         in.Income,
		FamilySize:     in.FamilySize,
		Eligibility:    string(res.Eligibility),
		Recommendation: res.Recommendation,
		FinalDecision:  res.FinalDecision,
		RawData:        raw,
	})
	if err != nil {
		return nil, err
	}

	if s.index != nil {
		if err := s.index.Index(ctx, app); err != nil {
			s.logger.Warn("decision indexing failed", map[string]interface{}{
				"applicationId": app.ApplicationID,
				"error":         err.Error(),
			})
		}
	}
	return app, nil
}
