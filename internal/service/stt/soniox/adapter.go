// Package soniox provides a diarizing speech source backed by the Soniox
// real-time transcription websocket.
package soniox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/service/stt"
)

const (
	providerName = "soniox"

	// DefaultURL is the real-time transcription endpoint.
	DefaultURL = "wss://stt-rt.soniox.com/transcribe-websocket"
	// DefaultModel is the real-time model.
	DefaultModel = "stt-rt-v3"

	closeWait = 2 * time.Second
)

// ErrMissingKey is returned by Start when no API key is configured.
var ErrMissingKey = errors.New("soniox: API key missing")

// Config configures the Soniox source.
type Config struct {
	ID            string
	URL           string
	APIKey        string
	Model         string
	SampleRate    int
	LanguageHints []string
}

// DefaultConfig returns 16 kHz mono pcm_s16le with English hints.
func DefaultConfig() Config {
	return Config{
		ID:            providerName,
		URL:           DefaultURL,
		Model:         DefaultModel,
		SampleRate:    16000,
		LanguageHints: []string{"en"},
	}
}

// startRequest is the first text frame of a session.
type startRequest struct {
	APIKey                       string   `json:"api_key"`
	Model                        string   `json:"model"`
	AudioFormat                  string   `json:"audio_format"`
	SampleRate                   int      `json:"sample_rate"`
	NumChannels                  int      `json:"num_channels"`
	EnableSpeakerDiarization     bool     `json:"enable_speaker_diarization"`
	EnableLanguageIdentification bool     `json:"enable_language_identification"`
	EnableEndpointDetection      bool     `json:"enable_endpoint_detection"`
	LanguageHints                []string `json:"language_hints,omitempty"`
}

type response struct {
	Tokens       []Token `json:"tokens"`
	Finished     bool    `json:"finished"`
	ErrorCode    int     `json:"error_code"`
	ErrorMessage string  `json:"error_message"`
}

// Adapter implements stt.Adapter and stt.AudioReceiver.
type Adapter struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

// New creates a Soniox source.
func New(cfg Config, logger zerolog.Logger) *Adapter {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ID == "" {
		cfg.ID = providerName
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Adapter{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// Source reports a diarizing source.
func (a *Adapter) Source() models.Source {
	return models.Source{ID: a.cfg.ID, Kind: models.SourceDiarizing}
}

func (a *Adapter) startRequest() startRequest {
	return startRequest{
		APIKey:                       a.cfg.APIKey,
		Model:                        a.cfg.Model,
		AudioFormat:                  "pcm_s16le",
		SampleRate:                   a.cfg.SampleRate,
		NumChannels:                  1,
		EnableSpeakerDiarization:     true,
		EnableLanguageIdentification: true,
		EnableEndpointDetection:      true,
		LanguageHints:                a.cfg.LanguageHints,
	}
}

// Start dials the socket, sends the session config and starts reading tokens.
func (a *Adapter) Start(ctx context.Context, sink stt.Sink) error {
	if a.cfg.APIKey == "" {
		return ErrMissingKey
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return stt.ErrAdapterStarted
	}

	conn, resp, err := a.dialer.DialContext(ctx, a.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial soniox: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial soniox: %w", err)
	}
	if err := conn.WriteJSON(a.startRequest()); err != nil {
		conn.Close()
		return fmt.Errorf("send soniox config: %w", err)
	}

	a.conn = conn
	a.done = make(chan struct{})
	go a.readLoop(conn, sink)
	a.logger.Info().Str("model", a.cfg.Model).Msg("Soniox socket connected")
	return nil
}

// SendAudio writes one binary PCM frame.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return stt.ErrNotStarted
	}
	if a.closed {
		return nil
	}
	return a.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Stop sends an empty frame to end the audio stream, waits for the final
// tokens and closes the socket.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.closed || a.conn == nil {
		a.closed = true
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn, done := a.conn, a.done
	err := conn.WriteMessage(websocket.BinaryMessage, []byte{})
	a.mu.Unlock()

	select {
	case <-done:
	case <-time.After(closeWait):
	}
	if cerr := conn.Close(); err == nil {
		err = cerr
	}
	<-done
	return err
}

func (a *Adapter) readLoop(conn *websocket.Conn, sink stt.Sink) {
	defer close(a.done)
	asm := &assembler{sourceID: a.cfg.ID}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				metrics.DefaultMetrics.RecordSTTError(providerName, "transport")
				a.logger.Error().Err(err).Msg("Soniox socket closed unexpectedly")
			}
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			metrics.DefaultMetrics.RecordSTTError(providerName, "parse")
			a.logger.Debug().Err(err).Msg("Dropping Soniox message")
			continue
		}
		if resp.ErrorCode != 0 || resp.ErrorMessage != "" {
			metrics.DefaultMetrics.RecordSTTError(providerName, "provider")
			a.logger.Error().
				Int("errorCode", resp.ErrorCode).
				Str("errorMessage", resp.ErrorMessage).
				Msg("Soniox reported an error, ending stream")
			return
		}

		for _, ev := range asm.push(resp.Tokens) {
			sink.Emit(ev)
		}
		if resp.Finished {
			for _, ev := range asm.flush(nil) {
				sink.Emit(ev)
			}
			return
		}
	}
}
