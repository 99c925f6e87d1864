package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	commonerrors "social-support-workers/internal/common/errors"
	commonhttp "social-support-workers/internal/common/http"
	"social-support-workers/internal/common/metrics"
)

const (
	DefaultBaseURL        = "http://llm:11434"
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 30 * time.Second
)

var ErrModelNotConfigured = errors.New("LLM_MODEL_NOT_CONFIGURED")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Reply struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type Config struct {
	BaseURL        string
	Model          string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RateLimit      float64
	RateBurst      int
}

// Client talks to an Ollama-compatible chat completions endpoint.
type Client struct {
	baseURL     string
	model       string
	readTimeout time.Duration
	http        *commonhttp.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, ErrModelNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		readTimeout: cfg.ReadTimeout,
		http: commonhttp.NewClient(commonhttp.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
			RateLimit:      cfg.RateLimit,
			RateBurst:      cfg.RateBurst,
		}),
	}, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Chat sends the conversation and returns the first choice. Failures come
// back as *errors.StandardError with an LLM_* code.
func (c *Client) Chat(ctx context.Context, messages []Message) (*Reply, error) {
	reply, err := c.chat(ctx, messages)
	result := "ok"
	if err != nil {
		result = string(commonerrors.Normalize(err).Code)
	}
	metrics.LLMRequests.WithLabelValues(result).Inc()
	return reply, err
}

func (c *Client) chat(ctx context.Context, messages []Message) (*Reply, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Stream: false})
	if err != nil {
		return nil, commonerrors.NewInternalError(fmt.Errorf("encode chat request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, commonerrors.NewLLMConnectFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		switch {
		case commonhttp.IsConnectError(err):
			return nil, commonerrors.NewLLMConnectFailedError(err)
		case commonhttp.IsTimeout(err):
			return nil, commonerrors.NewLLMTimeoutError(err)
		default:
			return nil, commonerrors.NewLLMConnectFailedError(err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, commonerrors.NewLLMHostError(resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		if commonhttp.IsTimeout(err) {
			return nil, commonerrors.NewLLMTimeoutError(err)
		}
		return nil, commonerrors.NewLLMMalformedResponseError(fmt.Errorf("decode: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return nil, commonerrors.NewLLMMalformedResponseError(errors.New("response has no choices"))
	}

	return &Reply{ID: parsed.ID, Content: parsed.Choices[0].Message.Content}, nil
}
