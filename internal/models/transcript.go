// Package models defines the data structures shared by the conversation pipeline.
package models

import (
	"strings"
	"time"
)

// Speaker is the canonical role a transcript line is attributed to.
type Speaker string

const (
	SpeakerSelf         Speaker = "self"
	SpeakerCounterparty Speaker = "counterparty"
)

// Other returns the opposite role.
func (s Speaker) Other() Speaker {
	if s == SpeakerSelf {
		return SpeakerCounterparty
	}
	return SpeakerSelf
}

// SourceKind classifies a speech source by how its speaker ids are attributed.
type SourceKind string

const (
	// SourceLocal is a single-stream local recognizer. Everything it hears is the operator.
	SourceLocal SourceKind = "local"
	// SourceRelay is a relayed realtime channel. Inbound audio is the operator,
	// model output is not part of the transcript.
	SourceRelay SourceKind = "relay"
	// SourceDiarizing is a streaming socket that labels speakers itself.
	SourceDiarizing SourceKind = "diarizing"
)

// Source identifies one transport adapter within a session.
type Source struct {
	ID   string     `json:"id"`
	Kind SourceKind `json:"kind"`
}

// RawSpeakerAssistant marks relay messages that carry model output.
const RawSpeakerAssistant = "assistant"

// RecognitionEvent is one incremental result emitted by a transport adapter.
type RecognitionEvent struct {
	RawSpeakerID string    `json:"rawSpeakerId"`
	Text         string    `json:"text"`
	IsFinal      bool      `json:"isFinal"`
	SourceID     string    `json:"sourceId" validate:"required"`
	Timestamp    time.Time `json:"timestamp" validate:"required"`
}

// TranscriptLine is a reconciled, displayable unit of the transcript.
// Interim lines are replaced in place; a final line never changes again.
type TranscriptLine struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"isFinal"`
	Abandoned bool      `json:"abandoned,omitempty"`
	SourceID  string    `json:"sourceId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is a finalized line that should elicit a suggestion, together with
// the lines that preceded it.
type Turn struct {
	Line    TranscriptLine   `json:"line"`
	History []TranscriptLine `json:"history"`
}

// Key derives the duplicate-suppression key for the turn.
func (t Turn) Key() string {
	return TurnKey(t.Line.Speaker, t.Line.Text)
}

// TurnKey combines a speaker with whitespace-normalized text.
func TurnKey(speaker Speaker, text string) string {
	return string(speaker) + ":" + NormalizeText(text)
}

// NormalizeText trims the text and collapses internal whitespace runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
