// Package relay consumes realtime-channel messages relayed by the client.
// Transcriptions of the operator's inbound audio become self lines; model
// output is tagged as assistant speech and never attributed.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/stt"
)

// Realtime event types the adapter understands.
const (
	EventInputDelta     = "conversation.item.input_audio_transcription.delta"
	EventInputCompleted = "conversation.item.input_audio_transcription.completed"
	EventOutputDelta    = "response.audio_transcript.delta"
	EventOutputDone     = "response.audio_transcript.done"
)

// RawSpeakerInbound labels transcriptions of the operator's own audio.
const RawSpeakerInbound = "user"

type message struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
}

// Adapter implements stt.Adapter and stt.MessageReceiver.
type Adapter struct {
	id string

	mu      sync.Mutex
	sink    stt.Sink
	partial map[string]*strings.Builder // item id -> accumulated deltas
	stopped bool
}

// New creates a relay source.
func New(id string) *Adapter {
	if id == "" {
		id = "relay"
	}
	return &Adapter{id: id, partial: make(map[string]*strings.Builder)}
}

// Source reports a relay source.
func (a *Adapter) Source() models.Source {
	return models.Source{ID: a.id, Kind: models.SourceRelay}
}

// Start registers the sink.
func (a *Adapter) Start(_ context.Context, sink stt.Sink) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sink != nil {
		return stt.ErrAdapterStarted
	}
	a.sink = sink
	return nil
}

// Stop discards partial transcriptions.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	a.partial = make(map[string]*strings.Builder)
	return nil
}

// Receive handles one relayed realtime message. Unknown types are ignored.
func (a *Adapter) Receive(raw []byte) error {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("%w: %v", stt.ErrMalformed, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sink == nil {
		return stt.ErrNotStarted
	}
	if a.stopped {
		return nil
	}

	switch msg.Type {
	case EventInputDelta:
		b, ok := a.partial[msg.ItemID]
		if !ok {
			b = &strings.Builder{}
			a.partial[msg.ItemID] = b
		}
		b.WriteString(msg.Delta)
		if text := strings.TrimSpace(b.String()); text != "" {
			a.sink.Emit(stt.NewEvent(a.id, RawSpeakerInbound, text, false))
		}
	case EventInputCompleted:
		text := msg.Transcript
		if b, ok := a.partial[msg.ItemID]; ok && strings.TrimSpace(text) == "" {
			text = b.String()
		}
		delete(a.partial, msg.ItemID)
		a.sink.Emit(stt.NewEvent(a.id, RawSpeakerInbound, strings.TrimSpace(text), true))
	case EventOutputDelta:
		a.sink.Emit(stt.NewEvent(a.id, models.RawSpeakerAssistant, msg.Delta, false))
	case EventOutputDone:
		a.sink.Emit(stt.NewEvent(a.id, models.RawSpeakerAssistant, msg.Transcript, true))
	}
	return nil
}
