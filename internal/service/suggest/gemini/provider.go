// Package gemini implements the suggestion provider for Google Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"ai-conversation-assist-service/internal/service/suggest"
)

// DefaultModel is used when the selector is just "gemini".
const DefaultModel = "gemini-2.0-flash"

// generator is the subset of *genai.Models the provider uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider calls the Gemini API through the genai SDK.
type Provider struct {
	models generator
}

// New creates a provider. An empty key yields a provider that reports an
// auth failure on every call.
func New(ctx context.Context, apiKey string, client *http.Client) (*Provider, error) {
	if apiKey == "" {
		return &Provider{}, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: client,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Provider{models: c.Models}, nil
}

// Name returns the provider label.
func (p *Provider) Name() string {
	return "gemini"
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type candidate struct {
	Content content `json:"content"`
}

type response struct {
	Candidates []candidate `json:"candidates"`
}

// Complete generates content and returns it in the candidates shape.
func (p *Provider) Complete(ctx context.Context, req suggest.CompletionRequest) (json.RawMessage, error) {
	if p.models == nil {
		return nil, suggest.NewAuthError("gemini API key is not configured")
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == suggest.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := p.models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, classify(err)
	}

	var out response
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var cc candidate
		for _, pt := range c.Content.Parts {
			if pt == nil || pt.Thought || pt.Text == "" {
				continue
			}
			cc.Content.Parts = append(cc.Content.Parts, part{Text: pt.Text})
		}
		out.Candidates = append(out.Candidates, cc)
	}
	return json.Marshal(out)
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		serr := suggest.ClassifyStatus(apiErr.Code, []byte(apiErr.Message))
		serr.Err = err
		return serr
	}
	return suggest.Classify(err)
}
