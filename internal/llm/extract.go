package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON recovers a JSON object or array from model output that may be
// wrapped in markdown fences or surrounded by prose. Returns false when no
// parseable JSON value is found.
func ExtractJSON(raw []byte) ([]byte, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, false
	}

	if fenced, ok := stripFence(text); ok {
		text = fenced
	}

	if json.Valid([]byte(text)) {
		return []byte(text), true
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(text, pair[0])
		end := strings.LastIndexByte(text, pair[1])
		if start >= 0 && end > start {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return []byte(candidate), true
			}
		}
	}

	return nil, false
}

func stripFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	rest := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}
