package models

const (
	NotificationDecisionApproved = "decision_approved"
	NotificationDecisionDeclined = "decision_declined"
)

type NotificationTemplate struct {
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
