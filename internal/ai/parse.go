package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/v0xg/formfill/internal/form"
)

type formDataPayload struct {
	FormData []struct {
		Name  string          `json:"name"`
		Value json.RawMessage `json:"value"`
	} `json:"formData"`
}

// parseFormData decodes a {"formData":[...]} object, extracting it from
// surrounding text when the model added prose or a code fence.
func parseFormData(response string) ([]form.FilledValue, error) {
	var payload formDataPayload
	if err := json.Unmarshal([]byte(response), &payload); err != nil {
		obj, ok := extractObject(response)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
		}
		payload = formDataPayload{}
		if err := json.Unmarshal([]byte(obj), &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	if len(payload.FormData) == 0 {
		return nil, ErrEmptyGeneratedData
	}

	values := make([]form.FilledValue, 0, len(payload.FormData))
	for _, item := range payload.FormData {
		values = append(values, form.FilledValue{Name: item.Name, Value: scalarText(item.Value)})
	}
	return values, nil
}

// scalarText renders a JSON value as the string a form control would hold.
// Models without schema enforcement sometimes answer numbers or booleans.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// extractObject finds the first balanced {...} in text, skipping braces
// inside string literals.
func extractObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
