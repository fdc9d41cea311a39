package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/stt"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		ok      bool
		wantErr bool
		speaker string
		text    string
		final   bool
	}{
		{
			name:    "final with speaker",
			data:    `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"It's too expensive","words":[{"word":"it's","speaker":1},{"word":"too","speaker":0}]}]}}`,
			ok:      true,
			speaker: "1",
			text:    "It's too expensive",
			final:   true,
		},
		{
			name:    "interim speaker zero",
			data:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","words":[{"word":"hello","speaker":0}]}]}}`,
			ok:      true,
			speaker: "0",
			text:    "Hello",
		},
		{
			name: "no words",
			data: `{"type":"Results","channel":{"alternatives":[{"transcript":"Hi"}]}}`,
			ok:   true,
			text: "Hi",
		},
		{name: "empty transcript", data: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"  "}]}}`},
		{name: "metadata", data: `{"type":"Metadata","request_id":"x"}`},
		{name: "speech started", data: `{"type":"SpeechStarted"}`},
		{name: "provider error", data: `{"error":"bad audio"}`, wantErr: true},
		{name: "not json", data: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := parseMessage("dg", []byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if ev.RawSpeakerID != tt.speaker || ev.Text != tt.text || ev.IsFinal != tt.final || ev.SourceID != "dg" {
				t.Errorf("unexpected event %+v", ev)
			}
		})
	}
}

func TestParseMessage_MalformedIsTagged(t *testing.T) {
	_, _, err := parseMessage("dg", []byte("{"))
	if !errors.Is(err, stt.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestListenURL(t *testing.T) {
	a := New(DefaultConfig(), zerolog.Nop())

	got, err := a.listenURL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, param := range []string{"encoding=linear16", "sample_rate=16000", "channels=1", "diarize=true",
		"punctuate=true", "interim_results=true", "endpointing=500", "vad_events=true"} {
		if !strings.Contains(got, param) {
			t.Errorf("expected %s in %s", param, got)
		}
	}
}

func TestStart_MissingKey(t *testing.T) {
	a := New(DefaultConfig(), zerolog.Nop())

	if err := a.Start(context.Background(), stt.SinkFunc(func(models.RecognitionEvent) {})); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

// fakeDeepgram answers the first audio frame with one result and records the
// text frames it receives.
type fakeDeepgram struct {
	mu       sync.Mutex
	auth     string
	audio    [][]byte
	controls []string
}

func (f *fakeDeepgram) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.mu.Lock()
			if mt == websocket.BinaryMessage {
				f.audio = append(f.audio, data)
			} else {
				f.controls = append(f.controls, string(data))
			}
			f.mu.Unlock()

			if mt == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(
					`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hello there","words":[{"speaker":1}]}]}}`))
			} else {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func TestAdapter_StreamsAudioAndEmitsResults(t *testing.T) {
	fake := &fakeDeepgram{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.APIKey = "secret"
	a := New(cfg, zerolog.Nop())

	events := make(chan models.RecognitionEvent, 4)
	if err := a.Start(context.Background(), stt.SinkFunc(func(ev models.RecognitionEvent) { events <- ev })); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := a.SendAudio(context.Background(), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	select {
	case ev := <-events:
		if ev.RawSpeakerID != "1" || ev.Text != "Hello there" || !ev.IsFinal || ev.SourceID != providerName {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	if err := a.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.auth != "Token secret" {
		t.Errorf("unexpected authorization header %q", fake.auth)
	}
	if len(fake.audio) != 1 || len(fake.audio[0]) != 4 {
		t.Errorf("unexpected audio frames %v", fake.audio)
	}
	if len(fake.controls) != 1 || fake.controls[0] != `{"type":"CloseStream"}` {
		t.Errorf("expected CloseStream, got %v", fake.controls)
	}
}
