// Package push accepts recognition results computed elsewhere, such as a
// browser recognizer or a scripted replay, relayed as JSON messages.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/stt"
)

// Adapter implements stt.Adapter and stt.MessageReceiver.
type Adapter struct {
	src models.Source

	mu      sync.Mutex
	sink    stt.Sink
	stopped bool
}

// New creates a push source of the given kind. Local is the usual choice.
func New(id string, kind models.SourceKind) *Adapter {
	if id == "" {
		id = "push"
	}
	if kind == "" {
		kind = models.SourceLocal
	}
	return &Adapter{src: models.Source{ID: id, Kind: kind}}
}

// Source returns the configured identity.
func (a *Adapter) Source() models.Source {
	return a.src
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

// Stop ignores further messages.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	return nil
}

// Receive decodes a PushMessage and emits it.
func (a *Adapter) Receive(raw []byte) error {
	var msg models.PushMessage
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
	a.sink.Emit(stt.NewEvent(a.src.ID, msg.Speaker, msg.Text, msg.IsFinal))
	return nil
}
