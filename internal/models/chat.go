package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type ChatMessage struct {
	SessionID   string    `json:"sessionId"`
	ApplicantID string    `json:"applicantId"`
	Role        string    `json:"role"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}
