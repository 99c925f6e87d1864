package models

import (
	"encoding/json"
	"time"
)

type Applicant struct {
	ApplicantID string                 `json:"applicantId"`
	Demographic map[string]interface{} `json:"demographic"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Application is one persisted decision. RawData holds the processed data
// bundle as JSON.
type Application struct {
	ApplicationID  string          `json:"applicationId"`
	ApplicantID    string          `json:"applicantId"`
	Income         float64         `json:"income"`
	FamilySize     int             `json:"familySize"`
	Eligibility    string          `json:"eligibility"`
	Recommendation string          `json:"recommendation"`
	FinalDecision  string          `json:"finalDecision"`
	RawData        json.RawMessage `json:"rawData"`
	CreatedAt      time.Time       `json:"createdAt"`
}
