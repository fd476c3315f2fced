package llms

import (
	"encoding/json"
	"strings"
)

// Content is a model response in exactly one of two shapes: Parsed when the
// text decoded as JSON, Raw otherwise. Callers branch on which field is set
// instead of re-sniffing the payload.
type Content struct {
	Parsed any    `json:"parsed,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

// ParseContent decodes s as JSON when possible and falls back to the raw
// string otherwise. Only object and array payloads count as parsed; a bare
// JSON scalar is kept raw since callers expect structured data or prose.
func ParseContent(s string) Content {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '{', '[':
			var v any
			if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
				return Content{Parsed: v}
			}
		}
	}
	return Content{Raw: s}
}

// IsParsed reports whether the content carried structured data.
func (c Content) IsParsed() bool {
	return c.Parsed != nil
}
