// Package observer defines the push-only interface through which a session
// reports transcript lines, suggestions and failures.
package observer

import (
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
)

// Observer receives session output. Methods are called from the session's
// goroutines and must not block for long.
type Observer interface {
	OnTranscriptLine(models.TranscriptLine)
	OnSuggestion(models.Suggestion)
	OnError(kind models.ErrorKind, message string)
}

// Multi fans every notification out to each observer in order.
type Multi []Observer

func (m Multi) OnTranscriptLine(line models.TranscriptLine) {
	for _, o := range m {
		o.OnTranscriptLine(line)
	}
}

func (m Multi) OnSuggestion(s models.Suggestion) {
	for _, o := range m {
		o.OnSuggestion(s)
	}
}

func (m Multi) OnError(kind models.ErrorKind, message string) {
	for _, o := range m {
		o.OnError(kind, message)
	}
}

// Funcs adapts optional callbacks to Observer. Nil fields are skipped.
type Funcs struct {
	Line       func(models.TranscriptLine)
	Suggestion func(models.Suggestion)
	Error      func(kind models.ErrorKind, message string)
}

func (f Funcs) OnTranscriptLine(line models.TranscriptLine) {
	if f.Line != nil {
		f.Line(line)
	}
}

func (f Funcs) OnSuggestion(s models.Suggestion) {
	if f.Suggestion != nil {
		f.Suggestion(s)
	}
}

func (f Funcs) OnError(kind models.ErrorKind, message string) {
	if f.Error != nil {
		f.Error(kind, message)
	}
}

// Log writes session output to a zerolog logger. Text is only logged at
// debug level.
type Log struct {
	logger zerolog.Logger
}

// NewLog returns a logging observer.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) OnTranscriptLine(line models.TranscriptLine) {
	if !line.IsFinal && !line.Abandoned {
		l.logger.Debug().Str("lineId", line.ID).Str("speaker", string(line.Speaker)).Str("text", line.Text).Msg("Transcript partial")
		return
	}
	l.logger.Info().
		Str("lineId", line.ID).
		Str("speaker", string(line.Speaker)).
		Bool("abandoned", line.Abandoned).
		Int("chars", len(line.Text)).
		Msg("Transcript line closed")
	l.logger.Debug().Str("lineId", line.ID).Str("text", line.Text).Msg("Transcript text")
}

func (l *Log) OnSuggestion(s models.Suggestion) {
	l.logger.Info().
		Str("lineId", s.LineID).
		Str("model", s.Model).
		Bool("fallback", s.Fallback).
		Int("attempts", s.Attempts).
		Msg("Suggestion delivered")
	l.logger.Debug().Str("lineId", s.LineID).Str("text", s.Text).Msg("Suggestion text")
}

func (l *Log) OnError(kind models.ErrorKind, message string) {
	l.logger.Warn().Str("kind", string(kind)).Str("message", message).Msg("Suggestion error surfaced")
}
