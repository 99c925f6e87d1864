package chatreply

type Input struct {
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Messages  []string               `json:"messages"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type Output struct {
	ChatResponses []string `json:"chatResponses"`
	SessionID     string   `json:"sessionId"`
}
