package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultDecisionIndex = "social-support-decisions"

// DecisionIndexer writes final decisions to a search index for auditors.
type DecisionIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewDecisionIndexer(client *elasticsearch.Client, index string, log logger.Logger) *DecisionIndexer {
	if index == "" {
		index = DefaultDecisionIndex
	}
	return &DecisionIndexer{client: client, index: index, logger: log}
}

type decisionDocument struct {
	ApplicationID  string    `json:"application_id"`
	ApplicantID    string    `json:"applicant_id"`
	Income         float64   `json:"income"`
	FamilySize     int       `json:"family_size"`
	Eligibility    string    `json:"eligibility"`
	Recommendation string    `json:"recommendation"`
	FinalDecision  string    `json:"final_decision"`
	CreatedAt      time.Time `json:"created_at"`
}

func (i *DecisionIndexer) Index(ctx context.Context, app *models.Application) error {
	if i == nil || i.client == nil {
		return nil
	}

	body, err := json.Marshal(decisionDocument{
		ApplicationID:  app.ApplicationID,
		ApplicantID:    app.ApplicantID,
		Income:         app.Income,
		FamilySize:     app.FamilySize,
		Eligibility:    app.Eligibility,
		Recommendation: app.Recommendation,
		FinalDecision:  app.FinalDecision,
		CreatedAt:      app.CreatedAt,
	})
	if err != nil {
		return commonerrors.NewSearchIndexFailedError(i.index, err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: app.ApplicationID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return commonerrors.NewSearchIndexFailedError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return commonerrors.NewSearchIndexFailedError(i.index, fmt.Errorf("index request failed: %s", res.Status()))
	}

	i.logger.Debug("decision indexed", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"index":         i.index,
	})
	return nil
}
