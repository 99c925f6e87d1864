package sendnotification

type Input struct {
	ApplicantID   string `json:"applicant_id"`
	ApplicationID string `json:"applicationId,omitempty"`
	Eligibility   string `json:"eligibility"`
	FinalDecision string `json:"finalDecision"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"notificationStatus"` // "sent", "failed", "disabled"
	Channels       []string `json:"notificationChannels,omitempty"`
	SentAt         string   `json:"sentAt"`
}

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)
