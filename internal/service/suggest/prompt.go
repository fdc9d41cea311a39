package suggest

import (
	"strings"

	"ai-conversation-assist-service/internal/models"
)

// DefaultSystemPrompt frames the model as the operator's sales assistant.
const DefaultSystemPrompt = "You are a sales assistant. Your job is to help the salesperson respond to the customer. " +
	"ALWAYS provide a helpful, actionable response (1-2 sentences) when the CUSTOMER speaks. " +
	"Suggest what the salesperson should say next. Be concise, warm and specific. " +
	"Never answer with an empty message."

// Chat roles used in completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-neutral request built for a turn.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
}

// PromptConfig shapes the completion request.
type PromptConfig struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// DefaultPromptConfig returns the default prompt settings.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		SystemPrompt: DefaultSystemPrompt,
		MaxTokens:    200,
		Temperature:  0.7,
	}
}

// BuildRequest turns a suggestion request into chat messages. History lines
// become user messages for the counterparty and assistant messages for the
// operator; the turn itself is the last user message.
func BuildRequest(req models.SuggestionRequest, model string, cfg PromptConfig) CompletionRequest {
	msgs := make([]Message, 0, len(req.Snapshot)+1)
	for _, line := range req.Snapshot {
		text := strings.TrimSpace(line.Text)
		if text == "" || !line.IsFinal {
			continue
		}
		role := RoleAssistant
		if line.Speaker == models.SpeakerCounterparty {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: text})
	}

	label := "Customer"
	if req.Speaker == models.SpeakerSelf {
		label = "Salesperson"
	}
	current := label + " said: " + req.Text
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		current += "\n\nContext: " + ctx
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: current})

	return CompletionRequest{
		Model:        model,
		SystemPrompt: cfg.SystemPrompt,
		Messages:     msgs,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}
}
