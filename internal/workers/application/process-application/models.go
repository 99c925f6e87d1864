package processapplication

import "social-support-workers/internal/assessment/pipeline"

// Input uses the same snake_case keys as the HTTP application body so both
// entry points share one schema.
type Input = pipeline.ApplicationInput

type Output struct {
	Eligibility    string           `json:"eligibility"`
	Recommendation string           `json:"recommendation"`
	FinalDecision  string           `json:"finalDecision"`
	ProcessedData  *pipeline.Bundle `json:"processedData"`
	Cached         bool             `json:"cached"`
}
