package soniox

import (
	"strings"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/service/stt"
)

const endToken = "<end>"

// Token is one recognized text fragment.
type Token struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Speaker string `json:"speaker"`
}

// assembler turns token batches into line-level events. Final tokens
// accumulate per speaker until an endpoint token or a speaker change closes
// the utterance; non-final tokens are re-sent by the provider with every
// batch and only extend the current interim text.
type assembler struct {
	sourceID string
	speaker  string
	final    strings.Builder
}

func (a *assembler) push(tokens []Token) []models.RecognitionEvent {
	var out []models.RecognitionEvent
	pending := make(map[string]*strings.Builder)
	var order []string

	for _, t := range tokens {
		if t.Text == endToken {
			out = a.flush(out)
			continue
		}
		if t.Text == "" {
			continue
		}
		if t.IsFinal {
			if a.final.Len() > 0 && t.Speaker != a.speaker {
				out = a.flush(out)
			}
			a.speaker = t.Speaker
			a.final.WriteString(t.Text)
			continue
		}
		b, ok := pending[t.Speaker]
		if !ok {
			b = &strings.Builder{}
			pending[t.Speaker] = b
			order = append(order, t.Speaker)
		}
		b.WriteString(t.Text)
	}

	if a.final.Len() > 0 {
		text := a.final.String()
		if b, ok := pending[a.speaker]; ok {
			text += b.String()
			delete(pending, a.speaker)
		}
		if s := strings.TrimSpace(text); s != "" {
			out = append(out, stt.NewEvent(a.sourceID, a.speaker, s, false))
		}
	}
	for _, sp := range order {
		b, ok := pending[sp]
		if !ok {
			continue
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, stt.NewEvent(a.sourceID, sp, s, false))
		}
	}
	return out
}

// flush closes the current utterance as a final event.
func (a *assembler) flush(out []models.RecognitionEvent) []models.RecognitionEvent {
	if s := strings.TrimSpace(a.final.String()); s != "" {
		out = append(out, stt.NewEvent(a.sourceID, a.speaker, s, true))
	}
	a.final.Reset()
	return out
}
