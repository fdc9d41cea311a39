// Package mock provides a diarizing speech source that replays a scripted
// two-speaker conversation, for running the service without cloud credentials.
// Every audio frame advances the script by one step: partial transcripts
// first, then exactly one final transcript per utterance.
package mock

import (
	"context"
	"sync"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/stt"
)

// Utterance is one scripted turn with progressive partial transcripts.
type Utterance struct {
	Speaker  string   // raw diarization id
	Partials []string // progressive partial transcripts
	Final    string   // final transcript text
}

// DefaultScript is a short sales call. Speaker "0" talks first and is
// attributed to the operator.
var DefaultScript = []Utterance{
	{
		Speaker:  "0",
		Partials: []string{"Hi", "Hi thanks for"},
		Final:    "Hi, thanks for taking the time today.",
	},
	{
		Speaker:  "1",
		Partials: []string{"I want", "I want to", "I want to cancel"},
		Final:    "I want to cancel my subscription",
	},
	{
		Speaker:  "0",
		Partials: []string{"I'm sorry", "I'm sorry to hear"},
		Final:    "I'm sorry to hear that. What changed?",
	},
	{
		Speaker:  "1",
		Partials: []string{"It's", "It's too", "It's too expensive"},
		Final:    "It's too expensive for what we use",
	},
	{
		Speaker:  "1",
		Partials: []string{"Can you", "Can you help", "Can you help me with"},
		Final:    "Can you help me with a cheaper plan?",
	},
}

// Config configures the mock source.
type Config struct {
	ID     string
	Script []Utterance
	Loop   bool // restart the script after the last utterance
}

// Adapter implements stt.Adapter and stt.AudioReceiver.
type Adapter struct {
	cfg Config

	mu           sync.Mutex
	sink         stt.Sink
	utterance    int // index into the script
	partialIndex int // next partial to send
	started      bool
	closed       bool
}

// New creates a mock source.
func New(cfg Config) *Adapter {
	if cfg.ID == "" {
		cfg.ID = "mock"
	}
	if len(cfg.Script) == 0 {
		cfg.Script = DefaultScript
	}
	return &Adapter{cfg: cfg}
}

// Source reports a diarizing source.
func (a *Adapter) Source() models.Source {
	return models.Source{ID: a.cfg.ID, Kind: models.SourceDiarizing}
}

// Start registers the sink.
func (a *Adapter) Start(_ context.Context, sink stt.Sink) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return stt.ErrAdapterStarted
	}
	a.started = true
	a.sink = sink
	return nil
}

// SendAudio advances the script by one step.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return stt.ErrNotStarted
	}
	if a.closed || a.utterance >= len(a.cfg.Script) {
		return nil
	}

	utt := a.cfg.Script[a.utterance]
	if a.partialIndex < len(utt.Partials) {
		text := utt.Partials[a.partialIndex]
		a.partialIndex++
		a.sink.Emit(stt.NewEvent(a.cfg.ID, utt.Speaker, text, false))
		return nil
	}

	a.sink.Emit(stt.NewEvent(a.cfg.ID, utt.Speaker, utt.Final, true))
	a.advance()
	return nil
}

// Stop ends the source. An utterance cut short by the end of the stream is
// finalized with its scripted text.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.started && a.partialIndex > 0 && a.utterance < len(a.cfg.Script) {
		utt := a.cfg.Script[a.utterance]
		a.sink.Emit(stt.NewEvent(a.cfg.ID, utt.Speaker, utt.Final, true))
	}
	return nil
}

// advance moves to the next utterance. Callers hold mu.
func (a *Adapter) advance() {
	a.partialIndex = 0
	a.utterance++
	if a.cfg.Loop && a.utterance >= len(a.cfg.Script) {
		a.utterance = 0
	}
}
