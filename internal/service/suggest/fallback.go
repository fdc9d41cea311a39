package suggest

import "strings"

// Fallback templates used when the backend returns no usable text.
const (
	FallbackQuestion = "I understand your question. Let me help you with that."
	FallbackConcern  = "I hear your concern. Let me address that for you."
	FallbackIssue    = "I understand there's an issue. Let me help resolve that."
	FallbackGeneric  = "I understand. How can I assist you further?"
	fallbackDefault  = "I understand. How can I help you?"
)

var (
	concernWords = map[string]bool{"no": true, "not": true, "never": true}
	issueWords   = []string{"problem", "issue", "wrong"}
)

// Fallback picks a template by inspecting the turn text. It never returns
// an empty string.
func Fallback(turnText string) string {
	lower := strings.ToLower(turnText)

	switch {
	case strings.Contains(lower, "?") || strings.Contains(lower, "question"):
		return FallbackQuestion
	case hasConcern(lower):
		return FallbackConcern
	case containsAny(lower, issueWords):
		return FallbackIssue
	case strings.TrimSpace(lower) != "":
		return FallbackGeneric
	default:
		return fallbackDefault
	}
}

func hasConcern(lower string) bool {
	if strings.Contains(lower, "concern") || strings.Contains(lower, "n't") {
		return true
	}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	}) {
		if concernWords[w] {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
