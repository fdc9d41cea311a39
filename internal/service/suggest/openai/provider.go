// Package openai implements the suggestion provider for OpenAI-compatible
// chat-completions endpoints (OpenAI, Groq).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-conversation-assist-service/internal/service/suggest"
)

// Default endpoints.
const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// Config configures a Provider.
type Config struct {
	Name    string // label used in logs and metrics
	BaseURL string
	APIKey  string
}

// Provider calls POST {BaseURL}/chat/completions.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New returns a provider. A nil client uses a client with a 30s timeout.
func New(cfg Config, client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIBaseURL
	}
	return &Provider{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
	}
}

// Name returns the provider label.
func (p *Provider) Name() string {
	return p.name
}

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []suggest.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature"`
}

// Complete sends one chat-completions request and returns the raw body.
func (p *Provider) Complete(ctx context.Context, req suggest.CompletionRequest) (json.RawMessage, error) {
	if p.apiKey == "" {
		return nil, suggest.NewAuthError(p.name + " API key is not configured")
	}

	msgs := make([]suggest.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, suggest.Message{Role: suggest.RoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, req.Messages...)

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, suggest.NewNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, suggest.NewNetworkError(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 300 {
		return nil, suggest.ClassifyStatus(resp.StatusCode, respBody)
	}
	return respBody, nil
}
