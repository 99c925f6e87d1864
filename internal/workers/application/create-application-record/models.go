package createapplicationrecord

import "social-support-workers/internal/assessment/pipeline"

// Input merges the application variables with the process-application output.
type Input struct {
	ApplicantID    string           `json:"applicant_id"`
	Income         float64          `json:"income"`
	FamilySize     int              `json:"family_size"`
	Eligibility    string           `json:"eligibility"`
	Recommendation string           `json:"recommendation"`
	FinalDecision  string           `json:"finalDecision"`
	ProcessedData  *pipeline.Bundle `json:"processedData"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	CreatedAt         string `json:"createdAt"` // ISO 8601
}
