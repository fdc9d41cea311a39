package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/dispatch"
	"ai-conversation-assist-service/internal/service/stt"
	"ai-conversation-assist-service/internal/service/stt/mock"
	"ai-conversation-assist-service/internal/service/stt/push"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []models.SuggestionRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req models.SuggestionRequest) (models.Suggestion, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return models.Suggestion{Text: "reply: " + req.Text, Key: req.Key, LineID: req.LineID}, nil
}

func (g *fakeGenerator) calls() []models.SuggestionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.SuggestionRequest(nil), g.requests...)
}

type recordingObserver struct {
	mu          sync.Mutex
	lines       []models.TranscriptLine
	suggestions chan models.Suggestion
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{suggestions: make(chan models.Suggestion, 16)}
}

func (o *recordingObserver) OnTranscriptLine(line models.TranscriptLine) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lines = append(o.lines, line)
}

func (o *recordingObserver) OnSuggestion(s models.Suggestion) { o.suggestions <- s }

func (o *recordingObserver) OnError(models.ErrorKind, string) {}

func (o *recordingObserver) getLines() []models.TranscriptLine {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.TranscriptLine(nil), o.lines...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ID = "test-session"
	cfg.Dispatch = dispatch.Config{Debounce: 10 * time.Millisecond, ModelSelector: "openai"}
	return cfg
}

func waitSuggestion(t *testing.T, o *recordingObserver) models.Suggestion {
	t.Helper()
	select {
	case s := <-o.suggestions:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for suggestion")
		return models.Suggestion{}
	}
}

func TestNew_Validation(t *testing.T) {
	gen := &fakeGenerator{}

	if _, err := New(testConfig(), Deps{Generator: gen}); !errors.Is(err, ErrNoSources) {
		t.Errorf("expected ErrNoSources, got %v", err)
	}

	_, err := New(testConfig(), Deps{
		Adapters:  []stt.Adapter{push.New("a", models.SourceLocal), push.New("a", models.SourceLocal)},
		Generator: gen,
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	if _, err := New(testConfig(), Deps{Adapters: []stt.Adapter{push.New("a", "")}}); err == nil {
		t.Error("expected error without generator")
	}
}

func TestNew_GeneratesID(t *testing.T) {
	cfg := testConfig()
	cfg.ID = ""
	s, err := New(cfg, Deps{Adapters: []stt.Adapter{push.New("p", "")}, Generator: &fakeGenerator{}, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(s.ID()) != 36 {
		t.Errorf("expected uuid session id, got %q", s.ID())
	}
}

func TestSession_DiarizedConversationProducesSuggestion(t *testing.T) {
	gen := &fakeGenerator{}
	obs := newRecordingObserver()
	script := []mock.Utterance{
		{Speaker: "0", Partials: []string{"Hi"}, Final: "Hi, thanks for joining."},
		{Speaker: "1", Partials: []string{"How much"}, Final: "How much does it cost?"},
	}
	s, err := New(testConfig(), Deps{
		Adapters:  []stt.Adapter{mock.New(mock.Config{ID: "dia", Script: script})},
		Generator: gen,
		Observer:  obs,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	for i := 0; i < 4; i++ {
		if err := s.SendAudio(context.Background(), make([]byte, 320)); err != nil {
			t.Fatalf("send audio: %v", err)
		}
	}

	sg := waitSuggestion(t, obs)
	if sg.Text != "reply: How much does it cost?" {
		t.Errorf("unexpected suggestion %q", sg.Text)
	}

	calls := gen.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(calls))
	}
	req := calls[0]
	if req.Speaker != models.SpeakerCounterparty || len(req.Snapshot) != 1 || req.Snapshot[0].Speaker != models.SpeakerSelf {
		t.Errorf("unexpected request %+v", req)
	}

	lines := s.Transcript()
	if len(lines) != 2 || !lines[0].IsFinal || !lines[1].IsFinal {
		t.Fatalf("expected two final lines, got %+v", lines)
	}
	if lines[0].Speaker != models.SpeakerSelf || lines[1].Speaker != models.SpeakerCounterparty {
		t.Errorf("unexpected attribution %+v", lines)
	}

	if got := obs.getLines(); len(got) != 4 {
		t.Errorf("expected 4 line notifications, got %d", len(got))
	}
	if got := s.Suggestions(); len(got) != 1 || got[0].LineID != lines[1].ID {
		t.Errorf("unexpected suggestion history %+v", got)
	}
}

func TestSession_ReceiveRouting(t *testing.T) {
	gen := &fakeGenerator{}
	obs := newRecordingObserver()
	cfg := testConfig()
	cfg.Turn.SoloMode = true
	s, err := New(cfg, Deps{
		Adapters: []stt.Adapter{
			push.New("browser", models.SourceLocal),
			mock.New(mock.Config{ID: "dia"}),
		},
		Generator: gen,
		Observer:  obs,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Receive("browser", []byte(`{}`)); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if err := s.Receive("nope", []byte(`{}`)); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
	if err := s.Receive("dia", []byte(`{}`)); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if err := s.Receive("browser", []byte(`{broken`)); !errors.Is(err, stt.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}

	if err := s.Receive("browser", []byte(`{"text":"Testing on my own","isFinal":true}`)); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if sg := waitSuggestion(t, obs); sg.Text != "reply: Testing on my own" {
		t.Errorf("unexpected suggestion %q", sg.Text)
	}
}

func TestSession_MinSilenceMergesTurns(t *testing.T) {
	gen := &fakeGenerator{}
	obs := newRecordingObserver()
	cfg := testConfig()
	cfg.Turn.MinSilence = 40 * time.Millisecond
	s, err := New(cfg, Deps{
		Adapters:  []stt.Adapter{push.New("dia", models.SourceDiarizing)},
		Generator: gen,
		Observer:  obs,
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	for _, msg := range []string{
		`{"speaker":"0","text":"Any questions?","isFinal":true}`,
		`{"speaker":"1","text":"Well,","isFinal":true}`,
		`{"speaker":"1","text":"what about support?","isFinal":true}`,
	} {
		if err := s.Receive("dia", []byte(msg)); err != nil {
			t.Fatalf("receive: %v", err)
		}
	}

	sg := waitSuggestion(t, obs)
	if sg.Text != "reply: Well, what about support?" {
		t.Errorf("expected merged turn, got %q", sg.Text)
	}
	if n := len(gen.calls()); n != 1 {
		t.Errorf("expected 1 backend call, got %d", n)
	}
}

func TestSession_Lifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Limits = Limits{MaxAudioBytes: 4}
	s, err := New(cfg, Deps{
		Adapters:  []stt.Adapter{mock.New(mock.Config{})},
		Generator: &fakeGenerator{},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSessionStarted) {
		t.Errorf("expected ErrSessionStarted, got %v", err)
	}
	if err := s.SendAudio(context.Background(), []byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("expected ErrLimitExceeded, got %v", err)
	}

	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Error("expected event loop to have exited")
	}
	if err := s.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if s.DispatcherState() != dispatch.Idle {
		t.Errorf("expected idle dispatcher, got %s", s.DispatcherState())
	}
}

func TestSession_SendAudioWithoutAudioSources(t *testing.T) {
	s, err := New(testConfig(), Deps{
		Adapters:  []stt.Adapter{push.New("p", "")},
		Generator: &fakeGenerator{},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = s.Start(context.Background())
	defer s.Stop()

	if err := s.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

type failingAdapter struct {
	stt.Adapter
}

func (failingAdapter) Start(context.Context, stt.Sink) error { return errors.New("no credentials") }

func TestSession_StartFailureStopsStartedSources(t *testing.T) {
	first := push.New("first", "")
	s, err := New(testConfig(), Deps{
		Adapters:  []stt.Adapter{first, failingAdapter{push.New("second", "")}},
		Generator: &fakeGenerator{},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if err := s.Receive("first", []byte(`{"text":"x"}`)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	<-s.Done()
}

func TestSession_SuggestionHistoryNewestFirst(t *testing.T) {
	s, err := New(testConfig(), Deps{
		Adapters:  []stt.Adapter{push.New("p", "")},
		Generator: &fakeGenerator{},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	obs := (*dispatchObserver)(s)
	for i := 0; i < SuggestionHistory+2; i++ {
		obs.OnSuggestion(models.Suggestion{Text: "s", Attempts: i})
	}

	got := s.Suggestions()
	if len(got) != SuggestionHistory {
		t.Fatalf("expected %d suggestions, got %d", SuggestionHistory, len(got))
	}
	if got[0].Attempts != SuggestionHistory+1 || got[len(got)-1].Attempts != 2 {
		t.Errorf("expected newest first, got first=%d last=%d", got[0].Attempts, got[len(got)-1].Attempts)
	}
}
