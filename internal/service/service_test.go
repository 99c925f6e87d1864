package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/assessment/extract"
	"social-support-workers/internal/assessment/pipeline"
	"social-support-workers/internal/assessment/recommendation"
	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/llm"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplicants struct {
	err error
	ids []string
}

func (f *fakeApplicants) EnsureApplicant(_ context.Context, id string) (bool, error) {
	f.ids = append(f.ids, id)
	return true, f.err
}

type fakeApplications struct {
	err   error
	saved []models.Application
}

func (f *fakeApplications) Create(_ context.Context, app models.Application) (*models.Application, error) {
	if f.err != nil {
		return nil, f.err
	}
	app.ApplicationID = "app-1"
	f.saved = append(f.saved, app)
	return &app, nil
}

type fakeIndex struct {
	err     error
	indexed int
}

func (f *fakeIndex) Index(context.Context, *models.Application) error {
	f.indexed++
	return f.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string, dst interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	return ok && json.Unmarshal(b, dst) == nil
}

func (c *memoryCache) Put(_ context.Context, key string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[key], _ = json.Marshal(v)
}

type countingPipeline struct {
	runs int
	o    *pipeline.Orchestrator
}

func (p *countingPipeline) Run(ctx context.Context, in pipeline.ApplicationInput) *pipeline.DecisionResult {
	p.runs++
	return p.o.Run(ctx, in)
}

func newPipeline(t *testing.T) *countingPipeline {
	log := logger.NewTestLogger(t)
	return &countingPipeline{o: pipeline.NewOrchestrator(pipeline.Options{
		Extractor:      extract.NewService(extract.NewFetcher(extract.FetcherOptions{}), extract.NewExtractor(nil, log), 2, log),
		Eligibility:    eligibility.NewPolicy(eligibility.DefaultConfig(), nil, log),
		Recommendation: recommendation.NewPolicy(recommendation.DefaultConfig(), log),
		Logger:         log,
	})}
}

func TestApplicationService_Submit(t *testing.T) {
	applicants := &fakeApplicants{}
	apps := &fakeApplications{}
	idx := &fakeIndex{err: errors.New("es down")}
	cache := &memoryCache{}
	p := newPipeline(t)

	svc := NewApplicationService(ApplicationServiceOptions{
		Applicants:   applicants,
		Applications: apps,
		Index:        idx,
		Cache:        cache,
		Pipeline:     p,
		Logger:       logger.NewTestLogger(t),
	})

	in := pipeline.ApplicationInput{ApplicantID: "a-1", Income: 100, FamilySize: 2}

	first, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "app-1", first.ApplicationID)
	assert.Equal(t, "approved", first.Eligibility)
	assert.Equal(t, recommendation.MsgApprovedLowIncome, first.Recommendation)
	assert.False(t, first.Cached)

	second, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.FinalDecision, second.FinalDecision)
	assert.Equal(t, 1, p.runs)

	assert.Equal(t, []string{"a-1", "a-1"}, applicants.ids)
	require.Len(t, apps.saved, 2)
	assert.Equal(t, 2, idx.indexed)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(apps.saved[0].RawData, &raw))
	assert.Equal(t, "approved", raw[pipeline.KeyEligibility])
	assert.Contains(t, raw, pipeline.KeyDocuments)
}

func TestApplicationService_Decide_DegradedResultNotCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Title: Clerk Duration: 2 years"))
	}))
	defer srv.Close()

	p := newPipeline(t)
	svc := NewApplicationService(ApplicationServiceOptions{
		Cache:    &memoryCache{},
		Pipeline: p,
		Logger:   logger.NewTestLogger(t),
	})
	in := pipeline.ApplicationInput{ApplicantID: "a-1", Income: 9000, FamilySize: 1, Documents: []string{srv.URL + "/resume.txt"}}

	first, cached := svc.Decide(context.Background(), in)
	assert.False(t, cached)
	require.Len(t, first.ProcessedData.ExtractedDocuments(), 1)
	assert.NotEmpty(t, first.ProcessedData.ExtractedDocuments()[0].Error)
	assert.Equal(t, recommendation.RuleNoEmployment, first.ProcessedData.RecommendationRule())

	second, cached := svc.Decide(context.Background(), in)
	assert.False(t, cached)
	assert.Equal(t, 1, second.ProcessedData.ResumeData().EmploymentCount)
	assert.NotEqual(t, recommendation.RuleNoEmployment, second.ProcessedData.RecommendationRule())

	third, cached := svc.Decide(context.Background(), in)
	assert.True(t, cached)
	assert.Equal(t, second.FinalDecision, third.FinalDecision)
	assert.Equal(t, 2, p.runs)
}

func TestCacheable(t *testing.T) {
	clean := pipeline.NewBundle(nil)
	clean.SetExtractedDocuments([]pipeline.DocumentSummary{{Index: 0}})
	failed := pipeline.NewBundle(nil)
	failed.SetExtractedDocuments([]pipeline.DocumentSummary{{Index: 0, Error: "DOCUMENT_FETCH_FAILED"}})

	assert.True(t, cacheable(&pipeline.DecisionResult{ProcessedData: clean, Stages: []pipeline.StageReport{{}}}))
	assert.False(t, cacheable(&pipeline.DecisionResult{ProcessedData: clean, Stages: []pipeline.StageReport{{Degraded: true}}}))
	assert.False(t, cacheable(&pipeline.DecisionResult{ProcessedData: failed}))
	assert.False(t, cacheable(nil))
}

func TestApplicationService_Submit_StorageErrors(t *testing.T) {
	dbErr := commonerrors.NewDatabaseInsertFailedError(errors.New("disk full"))

	t.Run("applicant", func(t *testing.T) {
		svc := NewApplicationService(ApplicationServiceOptions{
			Applicants: &fakeApplicants{err: dbErr},
			Pipeline:   newPipeline(t),
		})
		_, err := svc.Submit(context.Background(), pipeline.ApplicationInput{ApplicantID: "a"})
		assert.ErrorIs(t, err, dbErr)
	})

	t.Run("application", func(t *testing.T) {
		p := newPipeline(t)
		svc := NewApplicationService(ApplicationServiceOptions{
			Applicants:   &fakeApplicants{},
			Applications: &fakeApplications{err: dbErr},
			Pipeline:     p,
		})
		_, err := svc.Submit(context.Background(), pipeline.ApplicationInput{ApplicantID: "a", FamilySize: 1})
		assert.ErrorIs(t, err, dbErr)
		assert.Equal(t, 1, p.runs)
	})
}

type fakeModel struct {
	got   []llm.Message
	reply *llm.Reply
	err   error
}

func (f *fakeModel) Chat(_ context.Context, msgs []llm.Message) (*llm.Reply, error) {
	f.got = msgs
	return f.reply, f.err
}

type fakeHistory struct {
	msgs []models.ChatMessage
	err  error
}

func (f *fakeHistory) Append(_ context.Context, m models.ChatMessage) error {
	f.msgs = append(f.msgs, m)
	return f.err
}

type fakeSessions struct {
	prior    []llm.Message
	appended []llm.Message
}

func (f *fakeSessions) Append(_ context.Context, _ string, msgs ...llm.Message) error {
	f.appended = append(f.appended, msgs...)
	return nil
}

func (f *fakeSessions) Recent(context.Context, string) ([]llm.Message, error) {
	return f.prior, nil
}

func TestChatService_Reply(t *testing.T) {
	model := &fakeModel{reply: &llm.Reply{ID: "x", Content: "You may qualify."}}
	history := &fakeHistory{err: errors.New("chat table locked")}
	sessions := &fakeSessions{prior: []llm.Message{{Role: "user", Content: "earlier"}}}

	svc := NewChatService(ChatServiceOptions{
		Applicants:   &fakeApplicants{},
		History:      history,
		Sessions:     sessions,
		Model:        model,
		SystemPrompt: "You are a support assistant.",
		Logger:       logger.NewTestLogger(t),
	})

	resp, err := svc.Reply(context.Background(), ChatRequest{
		UserID:    "a-1",
		SessionID: "s-1",
		Messages:  []string{"hi", "am I eligible?"},
		Context:   map[string]interface{}{"income": 1000},
	})

	require.NoError(t, err)
	assert.Equal(t, &ChatResponse{Responses: []string{"You may qualify."}, SessionID: "s-1"}, resp)

	require.Len(t, model.got, 5)
	assert.Equal(t, llm.Message{Role: "system", Content: "You are a support assistant."}, model.got[0])
	assert.Equal(t, `Applicant context: {"income":1000}`, model.got[1].Content)
	assert.Equal(t, "earlier", model.got[2].Content)
	assert.Equal(t, "am I eligible?", model.got[4].Content)

	require.Len(t, history.msgs, 2)
	assert.Equal(t, models.RoleUser, history.msgs[0].Role)
	assert.Equal(t, "am I eligible?", history.msgs[0].Message)
	assert.Equal(t, "You may qualify.", history.msgs[1].Message)
	assert.Len(t, sessions.appended, 2)
}

func TestChatService_Reply_NewSessionAndModelError(t *testing.T) {
	model := &fakeModel{err: commonerrors.NewLLMTimeoutError(errors.New("deadline"))}
	history := &fakeHistory{}
	svc := NewChatService(ChatServiceOptions{Applicants: &fakeApplicants{}, History: history, Model: model})

	_, err := svc.Reply(context.Background(), ChatRequest{UserID: "a", Messages: []string{"hello"}})

	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeLLMTimeout, commonerrors.Normalize(err).Code)
	require.Len(t, history.msgs, 1)
	assert.Len(t, history.msgs[0].SessionID, 36)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "hello"}}, model.got)
}

func TestChatService_Reply_NoModel(t *testing.T) {
	applicants := &fakeApplicants{}
	svc := NewChatService(ChatServiceOptions{Applicants: applicants})

	_, err := svc.Reply(context.Background(), ChatRequest{UserID: "a", Messages: []string{"hello"}})

	assert.ErrorIs(t, err, llm.ErrModelNotConfigured)
	assert.Equal(t, commonerrors.ErrCodeLLMConnectFailed, commonerrors.Normalize(err).Code)
	assert.Empty(t, applicants.ids)
}
