package models

import "encoding/json"

// Event types published to Kafka and to websocket clients.
const (
	EventTranscriptPartial = "conversation.transcript.partial"
	EventTranscriptFinal   = "conversation.transcript.final"
	EventSuggestion        = "conversation.suggestion"
)

// TranscriptLineEvent is the Kafka payload for a changed transcript line.
type TranscriptLineEvent struct {
	EventType string         `json:"eventType"`
	SessionID string         `json:"sessionId"`
	Timestamp int64          `json:"timestamp"`
	Line      TranscriptLine `json:"line"`
}

// SuggestionEvent is the Kafka payload for a generated suggestion.
type SuggestionEvent struct {
	EventType  string     `json:"eventType"`
	SessionID  string     `json:"sessionId"`
	Timestamp  int64      `json:"timestamp"`
	Suggestion Suggestion `json:"suggestion"`
}

// Websocket frame types.
const (
	FrameMessage    = "message"
	FrameTranscript = "transcript"
	FrameSuggestion = "suggestion"
	FrameError      = "error"
	FrameSession    = "session"
)

// ClientFrame is a text frame sent by a session websocket client. Payload is
// routed to the adapter registered under Source.
type ClientFrame struct {
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// ServerFrame is pushed to session websocket clients.
type ServerFrame struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId,omitempty"`
	Line       *TranscriptLine `json:"line,omitempty"`
	Suggestion *Suggestion     `json:"suggestion,omitempty"`
	Kind       ErrorKind       `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// PushMessage is the payload accepted by push sources.
type PushMessage struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}
