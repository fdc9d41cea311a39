package suggest

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider performs one completion call. It returns the raw response body
// and classifies failures as *Error.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error)
}

// Route is the provider and model chosen for a model selector.
type Route struct {
	Provider Provider
	Model    string
}

// Router resolves model selectors to providers.
//
//	groq, llama*, mixtral*  -> Groq
//	gemini*                 -> Gemini
//	anything else           -> OpenAI
type Router struct {
	OpenAI      Provider
	OpenAIModel string
	Groq        Provider
	GroqModel   string
	Gemini      Provider
	GeminiModel string
}

// Resolve picks the route for selector. Families without a configured
// provider fall back to OpenAI.
func (r Router) Resolve(selector string) Route {
	s := strings.ToLower(strings.TrimSpace(selector))

	switch {
	case r.Groq != nil && (s == "groq" || strings.HasPrefix(s, "llama") || strings.HasPrefix(s, "mixtral")):
		return Route{Provider: r.Groq, Model: r.GroqModel}
	case r.Gemini != nil && strings.HasPrefix(s, "gemini"):
		model := r.GeminiModel
		if s != "gemini" {
			model = selector
		}
		return Route{Provider: r.Gemini, Model: model}
	default:
		model := r.OpenAIModel
		if strings.HasPrefix(s, "gpt-") || strings.HasPrefix(s, "o1") || strings.HasPrefix(s, "o3") {
			model = selector
		}
		return Route{Provider: r.OpenAI, Model: model}
	}
}
