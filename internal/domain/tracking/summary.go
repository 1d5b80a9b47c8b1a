package tracking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const answerPlaceholder = "{{answer}}"

// decodeAnswer parses a stored answer string. Answers are JSON-encoded
// (`"yes"`, `["a","b"]`, `3`) but legacy rows hold bare free text; a
// failed parse falls back to the literal string. Both encodings must
// keep working, so the fallback is load-bearing, not a convenience.
func decodeAnswer(raw string) interface{} {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return raw
	}
	return v
}

// RenderSummary substitutes the decoded answer into the first
// occurrence of {{answer}} in the template. Array answers are joined
// with ", ". Returns ok=false when the template or answer is empty or
// the answer decodes to nothing.
func RenderSummary(template, rawAnswer string) (string, bool) {
	if template == "" || strings.TrimSpace(rawAnswer) == "" {
		return "", false
	}
	text := answerText(decodeAnswer(rawAnswer))
	if text == "" {
		return "", false
	}
	return strings.Replace(template, answerPlaceholder, text, 1), true
}

func answerText(answer interface{}) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, el := range v {
			parts = append(parts, answerText(el))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
