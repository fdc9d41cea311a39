// Package stt defines the transport adapters that turn speech sources into
// recognition events.
package stt

import (
	"context"
	"errors"
	"time"

	"ai-conversation-assist-service/internal/models"
)

var (
	// ErrAdapterStarted is returned when Start is called twice.
	ErrAdapterStarted = errors.New("stt: adapter already started")
	// ErrNotStarted is returned when audio or messages arrive before Start.
	ErrNotStarted = errors.New("stt: adapter not started")
	// ErrMalformed marks a client message that could not be decoded.
	ErrMalformed = errors.New("stt: malformed message")
)

// Sink receives recognition events from an adapter. Emit must be safe to
// call from any goroutine.
type Sink interface {
	Emit(models.RecognitionEvent)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.RecognitionEvent)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev models.RecognitionEvent) {
	f(ev)
}

// Adapter is one speech source. It owns device or protocol handling,
// reconnection and credentials; the core only sees emitted events.
type Adapter interface {
	// Source identifies the adapter and its attribution policy.
	Source() models.Source

	// Start begins recognition and emits events to sink until Stop is called
	// or the stream ends.
	Start(ctx context.Context, sink Sink) error

	// Stop ends recognition and releases resources. It is safe to call more
	// than once.
	Stop() error
}

// AudioReceiver is implemented by adapters fed with raw PCM audio.
type AudioReceiver interface {
	SendAudio(ctx context.Context, audio []byte) error
}

// MessageReceiver is implemented by adapters fed with client-relayed messages.
type MessageReceiver interface {
	Receive(raw []byte) error
}

// NewEvent builds a recognition event stamped with the current time.
func NewEvent(sourceID, rawSpeakerID, text string, isFinal bool) models.RecognitionEvent {
	return models.RecognitionEvent{
		RawSpeakerID: rawSpeakerID,
		Text:         text,
		IsFinal:      isFinal,
		SourceID:     sourceID,
		Timestamp:    time.Now(),
	}
}
