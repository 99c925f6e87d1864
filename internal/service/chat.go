package service

import (
	"context"
	"encoding/json"

	commonerrors "social-support-workers/internal/common/errors"
	"social-support-workers/internal/common/llm"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/models"

	"github.com/google/uuid"
)

type ChatModel interface {
	Chat(ctx context.Context, messages []llm.Message) (*llm.Reply, error)
}

type ChatHistory interface {
	Append(ctx context.Context, msg models.ChatMessage) error
}

type SessionMemory interface {
	Append(ctx context.Context, sessionID string, msgs ...llm.Message) error
	Recent(ctx context.Context, sessionID string) ([]llm.Message, error)
}

type ChatRequest struct {
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Messages  []string               `json:"messages"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

type ChatResponse struct {
	Responses []string `json:"responses"`
	SessionID string   `json:"session_id"`
}

type ChatServiceOptions struct {
	Applicants   ApplicantStore
	History      ChatHistory
	Sessions     SessionMemory
	Model        ChatModel
	SystemPrompt string
	Logger       logger.Logger
}

type ChatService struct {
	applicants   ApplicantStore
	history      ChatHistory
	sessions     SessionMemory
	model        ChatModel
	systemPrompt string
	logger       logger.Logger
}

func NewChatService(opts ChatServiceOptions) *ChatService {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &ChatService{
		applicants:   opts.Applicants,
		history:      opts.History,
		sessions:     opts.Sessions,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		logger:       log,
	}
}

// Reply forwards the conversation to the model. Failures to record history
// are logged and do not fail the reply; model errors are returned as is.
func (s *ChatService) Reply(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if s.model == nil {
		return nil, commonerrors.NewLLMConnectFailedError(llm.ErrModelNotConfigured)
	}
	if _, err := s.applicants.EnsureApplicant(ctx, req.UserID); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	log := s.logger.WithFields(map[string]interface{}{"applicantId": req.UserID, "sessionId": sessionID})

	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1]
	}
	s.record(ctx, log, models.ChatMessage{SessionID: sessionID, ApplicantID: req.UserID, Role: models.RoleUser, Message: last})

	reply, err := s.model.Chat(ctx, s.conversation(ctx, log, sessionID, req))
	if err != nil {
		log.Error("chat model call failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	s.record(ctx, log, models.ChatMessage{SessionID: sessionID, ApplicantID: req.UserID, Role: models.RoleAssistant, Message: reply.Content})
	if s.sessions != nil {
		if err := s.sessions.Append(ctx, sessionID,
			llm.Message{Role: models.RoleUser, Content: last},
			llm.Message{Role: models.RoleAssistant, Content: reply.Content},
		); err != nil {
			log.Warn("session memory write failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return &ChatResponse{Responses: []string{reply.Content}, SessionID: sessionID}, nil
}

func (s *ChatService) conversation(ctx context.Context, log logger.Logger, sessionID string, req ChatRequest) []llm.Message {
	var msgs []llm.Message
	if s.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: models.RoleSystem, Content: s.systemPrompt})
	}
	if len(req.Context) > 0 {
		if b, err := json.Marshal(req.Context); err == nil {
			msgs = append(msgs, llm.Message{Role: models.RoleSystem, Content: "Applicant context: " + string(b)})
		}
	}
	if s.sessions != nil && req.SessionID != "" {
		prior, err := s.sessions.Recent(ctx, sessionID)
		if err != nil {
			log.Warn("session memory read failed", map[string]interface{}{"error": err.Error()})
		}
		msgs = append(msgs, prior...)
	}
	for _, m := range req.Messages {
		msgs = append(msgs, llm.Message{Role: models.RoleUser, Content: m})
	}
	return msgs
}

func (s *ChatService) record(ctx context.Context, log logger.Logger, msg models.ChatMessage) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, msg); err != nil {
		log.Warn("chat history write failed", map[string]interface{}{
			"role":  msg.Role,
			"error": err.Error(),
		})
	}
}
