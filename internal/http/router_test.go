package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ai-conversation-assist-service/internal/app"
	"ai-conversation-assist-service/internal/config"
	"ai-conversation-assist-service/internal/events"
	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/stt"
	"ai-conversation-assist-service/internal/service/stt/push"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, req models.SuggestionRequest) (models.Suggestion, error) {
	return models.Suggestion{Text: "try: " + req.Text, Key: req.Key, LineID: req.LineID}, nil
}

func newTestApp(t *testing.T, start bool) *app.Application {
	t.Helper()

	cfg := config.Load()
	cfg.Session.Debounce = 10 * time.Millisecond
	cfg.Session.MinSilence = 0

	a, err := app.New(context.Background(), cfg,
		app.WithGenerator(echoGenerator{}),
		app.WithPublisher(events.New(&events.Config{Enabled: false})),
		app.WithAdapterFactory(func(context.Context, string) ([]stt.Adapter, error) {
			return []stt.Adapter{push.New("call", models.SourceDiarizing)}, nil
		}),
	)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	if start {
		if err := a.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
	}
	t.Cleanup(a.Shutdown)
	return a
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		start  bool
		path   string
		status int
	}{
		{"liveness", false, "/v1/liveness", http.StatusOK},
		{"readiness before start", false, "/v1/readiness", http.StatusServiceUnavailable},
		{"readiness after start", true, "/v1/readiness", http.StatusOK},
		{"unknown session transcript", true, "/v1/sessions/missing/transcript", http.StatusNotFound},
		{"unknown session suggestions", true, "/v1/sessions/missing/suggestions", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(newTestApp(t, tt.start))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
			}
		})
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) models.ServerFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f models.ServerFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) models.ServerFrame {
	t.Helper()
	for i := 0; i < 20; i++ {
		if f := readFrame(t, conn); f.Type == frameType {
			return f
		}
	}
	t.Fatalf("no %s frame received", frameType)
	return models.ServerFrame{}
}

func sendMessage(t *testing.T, conn *websocket.Conn, speaker, text string) {
	t.Helper()
	payload, _ := json.Marshal(models.PushMessage{Speaker: speaker, Text: text, IsFinal: true})
	frame := models.ClientFrame{Type: models.FrameMessage, Source: "call", Payload: payload}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSessionStream(t *testing.T) {
	a := newTestApp(t, true)
	srv := httptest.NewServer(NewRouter(a))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := readFrame(t, conn)
	if hello.Type != models.FrameSession || hello.SessionID == "" {
		t.Fatalf("expected session frame, got %+v", hello)
	}

	sendMessage(t, conn, "0", "Thanks for taking the call.")
	sendMessage(t, conn, "1", "What does onboarding look like?")

	sg := readUntil(t, conn, models.FrameSuggestion)
	if sg.Suggestion == nil || sg.Suggestion.Text != "try: What does onboarding look like?" {
		t.Fatalf("unexpected suggestion frame %+v", sg)
	}

	// Malformed client frames are reported without ending the session.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readUntil(t, conn, models.FrameError); f.Kind != models.ErrorParse {
		t.Errorf("expected parse error frame, got %+v", f)
	}

	rec := httptest.NewRecorder()
	NewRouter(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+hello.SessionID+"/transcript", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("transcript status %d", rec.Code)
	}
	var tr transcriptResponse
	if err := json.NewDecoder(rec.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tr.Lines) != 2 {
		t.Fatalf("expected 2 transcript lines, got %d", len(tr.Lines))
	}
	if tr.Lines[0].Speaker != models.SpeakerSelf || tr.Lines[1].Speaker != models.SpeakerCounterparty {
		t.Errorf("unexpected speakers %s, %s", tr.Lines[0].Speaker, tr.Lines[1].Speaker)
	}

	rec = httptest.NewRecorder()
	NewRouter(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+hello.SessionID+"/suggestions", nil))
	var sr suggestionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sr.Suggestions) != 1 {
		t.Errorf("expected 1 suggestion, got %d", len(sr.Suggestions))
	}

	conn.Close()
	deadline := time.Now().Add(3 * time.Second)
	for a.Sessions.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := a.Sessions.Len(); n != 0 {
		t.Errorf("expected session removed after disconnect, %d remain", n)
	}
}

func TestSessionStream_NotReady(t *testing.T) {
	srv := httptest.NewServer(NewRouter(newTestApp(t, false)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail before start")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}
