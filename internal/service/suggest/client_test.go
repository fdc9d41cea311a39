package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-conversation-assist-service/internal/models"
)

// fakeProvider replays scripted results, one per call.
type fakeProvider struct {
	mu      sync.Mutex
	results []fakeResult
	calls   int
	last    CompletionRequest
}

type fakeResult struct {
	raw string
	err error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, req CompletionRequest) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = req
	i := p.calls
	p.calls++
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	r := p.results[i]
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(r.raw), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, RateLimitStep: 2 * time.Millisecond, TransientStep: time.Millisecond}
	cfg.RatePerSecond = 0
	cfg.Timeout = time.Second
	return cfg
}

func newTestClient(p Provider, opts ...Option) *Client {
	return NewClient(testConfig(), Router{OpenAI: p, OpenAIModel: "gpt-4o-mini"}, zerolog.Nop(), opts...)
}

func testRequest(text string) models.SuggestionRequest {
	line := models.TranscriptLine{ID: "s-line-1", Speaker: models.SpeakerCounterparty, Text: text, IsFinal: true}
	return models.NewSuggestionRequest(models.Turn{Line: line}, "openai", "")
}

func TestGenerate_Success(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{raw: `{"choices":[{"message":{"content":"Offer a discount."}}],"citations":["https://x.example"]}`}}}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newTestClient(p, WithClock(func() time.Time { return fixed }))

	s, err := c.Generate(context.Background(), testRequest("it's too expensive"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Text != "Offer a discount." || s.Fallback || s.Attempts != 1 {
		t.Errorf("unexpected suggestion %+v", s)
	}
	if s.Key != "counterparty:it's too expensive" || s.LineID != "s-line-1" || s.Model != "gpt-4o-mini" {
		t.Errorf("unexpected identity %+v", s)
	}
	if len(s.Citations) != 1 || !s.CreatedAt.Equal(fixed) {
		t.Errorf("unexpected metadata %+v", s)
	}
	if p.last.Model != "gpt-4o-mini" {
		t.Errorf("unexpected model sent %s", p.last.Model)
	}
}

func TestGenerate_AuthFailsWithoutRetry(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: ClassifyStatus(401, []byte("bad key"))}}}
	c := newTestClient(p)

	_, err := c.Generate(context.Background(), testRequest("hello"))

	if KindOf(err) != models.ErrorAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", p.calls)
	}
}

func TestGenerate_RateLimitBacksOffLinearly(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{
		{err: ClassifyStatus(429, nil)},
		{err: ClassifyStatus(429, nil)},
		{raw: `{"text":"Try again later."}`},
	}}
	var delays []time.Duration
	var kinds []models.ErrorKind
	c := newTestClient(p, WithRetryNotify(func(kind models.ErrorKind, d time.Duration) {
		kinds = append(kinds, kind)
		delays = append(delays, d)
	}))

	s, err := c.Generate(context.Background(), testRequest("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", s.Attempts)
	}
	if len(delays) != 2 || delays[0] != 2*time.Millisecond || delays[1] != 4*time.Millisecond {
		t.Errorf("unexpected delays %v", delays)
	}
	for _, k := range kinds {
		if k != models.ErrorRateLimit {
			t.Errorf("unexpected retry kind %s", k)
		}
	}
}

func TestGenerate_TransientExhausted(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: ClassifyStatus(503, nil)}}}
	c := newTestClient(p)

	_, err := c.Generate(context.Background(), testRequest("hello"))

	if KindOf(err) != models.ErrorTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", p.calls)
	}
}

func TestGenerate_NetworkRetried(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{
		{err: NewNetworkError(errors.New("connection reset"))},
		{raw: `{"response":"Recovered."}`},
	}}
	c := newTestClient(p)

	s, err := c.Generate(context.Background(), testRequest("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Text != "Recovered." || s.Attempts != 2 {
		t.Errorf("unexpected suggestion %+v", s)
	}
}

func TestGenerate_EmptyResponseUsesFallback(t *testing.T) {
	tests := []struct {
		raw  string
		text string
		want string
	}{
		{`{}`, "Can you send the contract?", FallbackQuestion},
		{`{"choices":[{"message":{"content":"no suggestion"}}]}`, "we never agreed to that", FallbackConcern},
		{`{"choices":[]}`, "ok", FallbackGeneric},
	}

	for _, tt := range tests {
		p := &fakeProvider{results: []fakeResult{{raw: tt.raw}}}
		s, err := newTestClient(p).Generate(context.Background(), testRequest(tt.text))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Text != tt.want || !s.Fallback {
			t.Errorf("%s: expected fallback %q, got %+v", tt.raw, tt.want, s)
		}
	}
}

func TestGenerate_NoProvider(t *testing.T) {
	c := NewClient(testConfig(), Router{}, zerolog.Nop())

	_, err := c.Generate(context.Background(), testRequest("hello"))
	if KindOf(err) != models.ErrorBadRequest {
		t.Errorf("expected bad_request, got %v", err)
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	p := &fakeProvider{results: []fakeResult{{err: ClassifyStatus(503, nil)}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(p).Generate(ctx, testRequest("hello"))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// gatedProvider blocks every call until release is closed and tracks how
// many calls were in flight at once.
type gatedProvider struct {
	mu      sync.Mutex
	active  int
	peak    int
	started chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Name() string { return "gated" }

func (p *gatedProvider) Complete(ctx context.Context, _ CompletionRequest) (json.RawMessage, error) {
	p.mu.Lock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	p.started <- struct{}{}
	select {
	case <-p.release:
		return json.RawMessage(`{"text":"Ask about their timeline."}`), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGenerate_OneRequestInFlight(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}, 2), release: make(chan struct{})}
	c := newTestClient(p)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, text := range []string{"what does it cost?", "when can you start?"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := c.Generate(context.Background(), testRequest(text))
			errs <- err
		}(text)
	}

	<-p.started
	select {
	case <-p.started:
		t.Fatal("second request reached the provider while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(p.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if p.peak != 1 {
		t.Errorf("expected at most 1 call in flight, got %d", p.peak)
	}
}

func TestGenerate_WaitingForSlotHonorsContext(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}, 1), release: make(chan struct{})}
	c := newTestClient(p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Generate(context.Background(), testRequest("first"))
	}()
	<-p.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, testRequest("second")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(p.release)
	<-done
}
