package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseClassification is the single boundary between the backend's free-form
// output and the rest of the router. It tolerates markdown fences and
// surrounding prose; everything else is an error and the caller falls back.
func parseClassification(raw string) (Classification, error) {
	body := stripFences(raw)

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return Classification{}, fmt.Errorf("no JSON object in classifier output")
	}

	var c Classification
	if err := json.Unmarshal([]byte(body[start:end+1]), &c); err != nil {
		return Classification{}, fmt.Errorf("decode classifier output: %w", err)
	}
	c.ActionKind = strings.TrimSpace(strings.ToLower(c.ActionKind))
	if !KnownAction(c.ActionKind) {
		return Classification{}, fmt.Errorf("unknown action kind %q", c.ActionKind)
	}
	c.Topic = strings.TrimSpace(c.Topic)
	return c, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the info string, e.g. "json".
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
