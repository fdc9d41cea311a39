package suggest

import (
	"encoding/json"
	"strings"
)

// extractionPaths lists the response fields tried in order. String segments
// are object keys; "*" joins the text of every element of an array.
var extractionPaths = [][]string{
	{"choices", "0", "message", "content"},
	{"choices", "0", "message", "text"},
	{"choices", "0", "text"},
	{"choices", "0", "delta", "content"},
	{"choices", "0", "content"},
	{"candidates", "0", "content", "parts", "*", "text"},
	{"text"},
	{"response"},
}

var placeholders = map[string]bool{
	"no suggestion": true,
	"null":          true,
	"undefined":     true,
}

// Extract pulls suggestion text and citations out of a raw provider response.
// It returns empty text when no path yields usable text.
func Extract(raw []byte) (string, []string) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", nil
	}

	var text string
	for _, path := range extractionPaths {
		if s := usable(lookup(doc, path)); s != "" {
			text = s
			break
		}
	}
	return text, citations(doc)
}

func usable(v any) string {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if placeholders[strings.ToLower(s)] {
		return ""
	}
	return s
}

func lookup(v any, path []string) any {
	for i, key := range path {
		switch node := v.(type) {
		case map[string]any:
			v = node[key]
		case []any:
			if key == "*" {
				var parts []string
				for _, el := range node {
					if s, ok := lookup(el, path[i+1:]).(string); ok && s != "" {
						parts = append(parts, s)
					}
				}
				return strings.Join(parts, "")
			}
			if key != "0" || len(node) == 0 {
				return nil
			}
			v = node[0]
		default:
			return nil
		}
	}
	return v
}

func citations(doc any) []string {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	list, ok := root["citations"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, c := range list {
		if s, ok := c.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
