package llm

import (
	"encoding/json"
	"strings"
)

// Unmarshal decodes a model reply into v. Markdown code fences around the
// JSON payload are tolerated; anything else is an error.
func Unmarshal(reply string, v any) error {
	return json.Unmarshal([]byte(StripFences(reply)), v)
}

// StripFences removes a surrounding ``` or ```json fence.
func StripFences(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
