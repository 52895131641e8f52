package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
)

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag, and surrounding whitespace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop the info string (e.g. "json").
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeObject decodes a completion expected to hold one JSON object into v.
// Unknown fields are ignored; anything that is not an object is a parse
// error attributed to stage.
func DecodeObject(stage, text string, v any) error {
	body := StripFences(text)
	if body == "" {
		return errors.NewParseError(stage, fmt.Errorf("empty response"))
	}
	if body[0] != '{' {
		// Tolerate prose around the object.
		start := strings.IndexByte(body, '{')
		end := strings.LastIndexByte(body, '}')
		if start < 0 || end <= start {
			return errors.NewParseError(stage, fmt.Errorf("no JSON object in response"))
		}
		body = body[start : end+1]
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(v); err != nil {
		return errors.NewParseError(stage, err)
	}
	return nil
}
