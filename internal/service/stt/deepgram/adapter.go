// Package deepgram provides a diarizing speech source backed by the Deepgram
// live transcription websocket.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
	"ai-conversation-assist-service/internal/service/stt"
)

const (
	providerName = "deepgram"

	// DefaultURL is the live transcription endpoint.
	DefaultURL = "wss://api.deepgram.com/v1/listen"

	closeWait = 2 * time.Second
)

// ErrMissingKey is returned by Start when no API key is configured.
var ErrMissingKey = errors.New("deepgram: API key missing")

// Config configures the Deepgram source.
type Config struct {
	ID          string
	URL         string
	APIKey      string
	SampleRate  int
	Endpointing time.Duration
}

// DefaultConfig returns 16 kHz mono linear16 with 500ms endpointing.
func DefaultConfig() Config {
	return Config{
		ID:          providerName,
		URL:         DefaultURL,
		SampleRate:  16000,
		Endpointing: 500 * time.Millisecond,
	}
}

// Adapter implements stt.Adapter and stt.AudioReceiver.
type Adapter struct {
	cfg    Config
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu     sync.Mutex // guards conn writes and state
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

// New creates a Deepgram source.
func New(cfg Config, logger zerolog.Logger) *Adapter {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ID == "" {
		cfg.ID = providerName
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

// listenURL appends the streaming parameters to the configured endpoint.
func (a *Adapter) listenURL() (string, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(a.cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("diarize", "true")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.FormatInt(a.cfg.Endpointing.Milliseconds(), 10))
	q.Set("vad_events", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start dials the socket and starts reading results.
func (a *Adapter) Start(ctx context.Context, sink stt.Sink) error {
	if a.cfg.APIKey == "" {
		return ErrMissingKey
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return stt.ErrAdapterStarted
	}

	target, err := a.listenURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+a.cfg.APIKey)
	conn, resp, err := a.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial deepgram: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial deepgram: %w", err)
	}

	a.conn = conn
	a.done = make(chan struct{})
	go a.readLoop(conn, sink)
	a.logger.Info().Msg("Deepgram socket connected")
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

// Stop asks Deepgram to flush, then closes the socket once the reader has
// drained or after a short wait.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if a.closed || a.conn == nil {
		a.closed = true
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn, done := a.conn, a.done
	err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	a.mu.Unlock()

	select {
	case <-done:
	case <-time.After(closeWait):
	}
	if cerr := conn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	<-done
	return err
}

func (a *Adapter) readLoop(conn *websocket.Conn, sink stt.Sink) {
	defer close(a.done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				metrics.DefaultMetrics.RecordSTTError(providerName, "transport")
				a.logger.Error().Err(err).Msg("Deepgram socket closed unexpectedly")
			}
			return
		}

		ev, ok, err := parseMessage(a.cfg.ID, data)
		if err != nil {
			metrics.DefaultMetrics.RecordSTTError(providerName, "parse")
			a.logger.Debug().Err(err).Msg("Dropping Deepgram message")
			continue
		}
		if ok {
			sink.Emit(ev)
		}
	}
}

type message struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel *struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
			Words      []struct {
				Speaker *int `json:"speaker"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
	Error string `json:"error"`
}

// parseMessage converts a result message. Metadata, VAD events and empty
// transcripts yield no event.
func parseMessage(sourceID string, data []byte) (models.RecognitionEvent, bool, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.RecognitionEvent{}, false, fmt.Errorf("%w: %v", stt.ErrMalformed, err)
	}
	if msg.Error != "" {
		return models.RecognitionEvent{}, false, fmt.Errorf("deepgram error: %s", msg.Error)
	}
	if msg.Channel == nil || len(msg.Channel.Alternatives) == 0 {
		return models.RecognitionEvent{}, false, nil
	}

	alt := msg.Channel.Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return models.RecognitionEvent{}, false, nil
	}

	raw := ""
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		raw = strconv.Itoa(*alt.Words[0].Speaker)
	}
	return stt.NewEvent(sourceID, raw, alt.Transcript, msg.IsFinal), true, nil
}
