package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/suggest"
)

func TestComplete_SendsChatRequest(t *testing.T) {
	var got chatRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Offer a discount."}}]}`))
	}))
	defer srv.Close()

	p := New(Config{Name: "groq", BaseURL: srv.URL + "/openai/v1/", APIKey: "k"}, srv.Client())
	raw, err := p.Complete(context.Background(), suggest.CompletionRequest{
		Model:        "llama-3.3-70b-versatile",
		SystemPrompt: "be brief",
		Messages:     []suggest.Message{{Role: suggest.RoleUser, Content: "Customer said: too pricey"}},
		MaxTokens:    200,
		Temperature:  0.7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if auth != "Bearer k" {
		t.Errorf("unexpected auth header %q", auth)
	}
	if path != "/openai/v1/chat/completions" {
		t.Errorf("unexpected path %q", path)
	}
	if got.Model != "llama-3.3-70b-versatile" || got.MaxTokens != 200 {
		t.Errorf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != suggest.RoleSystem {
		t.Errorf("expected system prompt first, got %+v", got.Messages)
	}
	if text, _ := suggest.Extract(raw); text != "Offer a discount." {
		t.Errorf("unexpected body %s", raw)
	}
}

func TestComplete_ClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   models.ErrorKind
	}{
		{http.StatusUnauthorized, models.ErrorAuth},
		{http.StatusForbidden, models.ErrorAuth},
		{http.StatusTooManyRequests, models.ErrorRateLimit},
		{http.StatusInternalServerError, models.ErrorTransient},
		{http.StatusBadGateway, models.ErrorTransient},
		{http.StatusBadRequest, models.ErrorBadRequest},
		{http.StatusNotFound, models.ErrorBadRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			p := New(Config{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
			_, err := p.Complete(context.Background(), suggest.CompletionRequest{Model: "gpt-4o"})

			var serr *suggest.Error
			if !errors.As(err, &serr) {
				t.Fatalf("expected *suggest.Error, got %v", err)
			}
			if serr.Kind != tt.want || serr.StatusCode != tt.status {
				t.Errorf("expected %s/%d, got %s/%d", tt.want, tt.status, serr.Kind, serr.StatusCode)
			}
		})
	}
}

func TestComplete_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := New(Config{BaseURL: url, APIKey: "k"}, nil)
	_, err := p.Complete(context.Background(), suggest.CompletionRequest{Model: "gpt-4o"})

	if kind := suggest.KindOf(err); kind != models.ErrorNetwork {
		t.Errorf("expected network error, got %s (%v)", kind, err)
	}
}

func TestComplete_MissingKey(t *testing.T) {
	p := New(Config{}, nil)
	_, err := p.Complete(context.Background(), suggest.CompletionRequest{})

	if kind := suggest.KindOf(err); kind != models.ErrorAuth {
		t.Errorf("expected auth error, got %s", kind)
	}
}
