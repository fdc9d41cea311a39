package suggest

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"chat content", `{"choices":[{"message":{"content":" Offer a trial. "}}]}`, "Offer a trial."},
		{"message text", `{"choices":[{"message":{"text":"Ask about timing."}}]}`, "Ask about timing."},
		{"completion text", `{"choices":[{"text":"Confirm the budget."}]}`, "Confirm the budget."},
		{"delta", `{"choices":[{"delta":{"content":"Mention support."}}]}`, "Mention support."},
		{"choice content", `{"choices":[{"content":"Share a case study."}]}`, "Share a case study."},
		{"candidates", `{"candidates":[{"content":{"parts":[{"text":"Ask "},{"text":"why."}]}}]}`, "Ask why."},
		{"top-level text", `{"text":"Summarize next steps."}`, "Summarize next steps."},
		{"response", `{"response":"Thank them."}`, "Thank them."},
		{"first usable path wins", `{"choices":[{"message":{"content":""},"text":"Fallback path."}]}`, "Fallback path."},
		{"placeholder", `{"choices":[{"message":{"content":"No Suggestion"}}]}`, ""},
		{"null string", `{"text":"null"}`, ""},
		{"empty object", `{}`, ""},
		{"empty choices", `{"choices":[]}`, ""},
		{"not json", `oops`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Extract([]byte(tt.raw))
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExtract_Citations(t *testing.T) {
	_, cites := Extract([]byte(`{"text":"See pricing.","citations":["https://a.example","",3,"https://b.example"]}`))

	if len(cites) != 2 || cites[0] != "https://a.example" || cites[1] != "https://b.example" {
		t.Errorf("unexpected citations %v", cites)
	}
}
