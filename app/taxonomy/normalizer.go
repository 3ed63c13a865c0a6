package taxonomy

import (
	"encoding/json"
	"log/slog"
)

// Normalizer validates raw classifier output and maps it onto the closed
// taxonomy. It is pure and deterministic: no I/O, no randomness.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// rawResult mirrors the JSON shape the classifier is prompted to produce.
// Fields are RawMessage so that type mismatches are detected per field
// instead of failing the whole decode with a position-less error.
type rawResult struct {
	Summary         json.RawMessage `json:"summary"`
	Category        json.RawMessage `json:"category"`
	HasUnsubscribe  json.RawMessage `json:"hasUnsubscribe"`
	UnsubscribeLink json.RawMessage `json:"unsubscribeLink"`
	TransitionFrom  json.RawMessage `json:"transitionFrom"`
	TransitionTo    json.RawMessage `json:"transitionTo"`
}

// Run extracts the first well-formed JSON object from raw text, validates
// the required fields, and returns a fully-typed ClassificationResult.
// Malformed input yields a *FormatError, never a panic.
func (n *Normalizer) Run(raw string) (*ClassificationResult, error) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return nil, &FormatError{Reason: "no JSON object found", Raw: raw}
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, &FormatError{Reason: "invalid JSON: " + err.Error(), Raw: raw}
	}

	summary, ok := decodeString(parsed.Summary)
	if !ok {
		return nil, &FormatError{Reason: "missing or non-string 'summary'", Raw: raw}
	}
	rawCategory, ok := decodeString(parsed.Category)
	if !ok {
		return nil, &FormatError{Reason: "missing or non-string 'category'", Raw: raw}
	}
	hasUnsubscribe, ok := decodeBool(parsed.HasUnsubscribe)
	if !ok {
		return nil, &FormatError{Reason: "missing or non-boolean 'hasUnsubscribe'", Raw: raw}
	}

	result := &ClassificationResult{
		Category:       ParseCategory(rawCategory),
		HasUnsubscribe: hasUnsubscribe,
		Summary:        summary,
	}

	if link, ok := decodeString(parsed.UnsubscribeLink); ok {
		result.UnsubscribeLink = link
	}

	if result.Category == CategoryJob {
		if rawTo, ok := decodeString(parsed.TransitionTo); ok {
			if to, valid := ParseStage(rawTo); valid {
				result.TransitionTo = &to
				// jobStage is the machine-readable slug source, derived
				// from the validated transition target.
				stage := to
				result.JobStage = &stage

				// transitionFrom is only meaningful alongside a valid target.
				if rawFrom, ok := decodeString(parsed.TransitionFrom); ok {
					if from, valid := ParseStage(rawFrom); valid {
						result.TransitionFrom = &from
					}
				}
			} else {
				slog.Debug("Unrecognized stage in classifier response", "value", rawTo)
			}
		}
	}

	return result, nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, false
	}
	return b, true
}

// ExtractJSONObject returns the first balanced brace-delimited object in s.
// Braces inside JSON strings (and escaped quotes inside those) do not count
// toward the balance, so prose or markdown fencing around the object is fine.
func ExtractJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

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
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}

	return "", false
}
