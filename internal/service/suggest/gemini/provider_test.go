package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/suggest"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func TestComplete_MapsRequestAndResponse(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Ask what budget "},
				{Text: "they have in mind."},
			}},
		}},
	}}
	p := &Provider{models: fake}

	raw, err := p.Complete(context.Background(), suggest.CompletionRequest{
		Model:        "gemini-2.0-flash",
		SystemPrompt: "be brief",
		Messages: []suggest.Message{
			{Role: suggest.RoleAssistant, Content: "Hi, how can I help?"},
			{Role: suggest.RoleUser, Content: "Customer said: it's too expensive"},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fake.model != "gemini-2.0-flash" {
		t.Errorf("unexpected model %s", fake.model)
	}
	if len(fake.contents) != 2 || fake.contents[0].Role != genai.RoleModel || fake.contents[1].Role != genai.RoleUser {
		t.Errorf("unexpected contents %+v", fake.contents)
	}
	if fake.config.SystemInstruction == nil || fake.config.MaxOutputTokens != 200 {
		t.Errorf("unexpected config %+v", fake.config)
	}

	text, _ := suggest.Extract(raw)
	if text != "Ask what budget they have in mind." {
		t.Errorf("unexpected extracted text %q from %s", text, raw)
	}
}

func TestComplete_ClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		code int
		want models.ErrorKind
	}{
		{401, models.ErrorAuth},
		{403, models.ErrorAuth},
		{429, models.ErrorRateLimit},
		{503, models.ErrorTransient},
		{400, models.ErrorBadRequest},
	}

	for _, tt := range tests {
		p := &Provider{models: &fakeModels{err: genai.APIError{Code: tt.code, Message: "boom"}}}
		_, err := p.Complete(context.Background(), suggest.CompletionRequest{Model: DefaultModel})

		if kind := suggest.KindOf(err); kind != tt.want {
			t.Errorf("code %d: expected %s, got %s", tt.code, tt.want, kind)
		}
	}
}

func TestComplete_WithoutKey(t *testing.T) {
	p, err := New(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = p.Complete(context.Background(), suggest.CompletionRequest{})
	var serr *suggest.Error
	if !errors.As(err, &serr) || serr.Kind != models.ErrorAuth {
		t.Errorf("expected auth error, got %v", err)
	}
}
