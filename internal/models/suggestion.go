package models

import "time"

// SuggestionRequest is one call to the suggestion backend.
type SuggestionRequest struct {
	Key           string           `json:"key"`
	Speaker       Speaker          `json:"speaker"`
	Text          string           `json:"text"`
	LineID        string           `json:"lineId"`
	Snapshot      []TranscriptLine `json:"conversationSnapshot"`
	ModelSelector string           `json:"modelSelector"`
	Context       string           `json:"context,omitempty"`
}

// NewSuggestionRequest builds the request for a turn.
func NewSuggestionRequest(turn Turn, modelSelector, context string) SuggestionRequest {
	return SuggestionRequest{
		Key:           turn.Key(),
		Speaker:       turn.Line.Speaker,
		Text:          NormalizeText(turn.Line.Text),
		LineID:        turn.Line.ID,
		Snapshot:      turn.History,
		ModelSelector: modelSelector,
		Context:       context,
	}
}

// Suggestion is the text surfaced to observers. Text is never empty.
type Suggestion struct {
	Text      string    `json:"text"`
	Citations []string  `json:"citations,omitempty"`
	Key       string    `json:"key"`
	LineID    string    `json:"lineId"`
	Model     string    `json:"model,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrorKind classifies failures surfaced by the pipeline.
type ErrorKind string

const (
	ErrorTransport  ErrorKind = "transport"
	ErrorParse      ErrorKind = "parse"
	ErrorAuth       ErrorKind = "auth"
	ErrorRateLimit  ErrorKind = "rate_limit"
	ErrorTransient  ErrorKind = "transient"
	ErrorNetwork    ErrorKind = "network"
	ErrorBadRequest ErrorKind = "bad_request"
)

// Retryable reports whether the backend client retries this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorRateLimit, ErrorTransient, ErrorNetwork:
		return true
	default:
		return false
	}
}
