package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"oscan-intake/pkg"
)

const (
	// ClarifySpeech replaces a missing speech value.
	ClarifySpeech = "Could you repeat that?"
	// UnavailableSpeech is returned once every model variant has failed.
	UnavailableSpeech = "I'm having a small connection issue right now. Could you try again in a moment?"
	// NotConfiguredSpeech is returned when no model credential is set.
	NotConfiguredSpeech = "The AI service is not configured. Please ask the clinic administrator to add a model API key."
)

// ErrMalformed is returned by DecodeAction when no JSON object can be
// recovered from the model output.
var ErrMalformed = errors.New("malformed model output")

// Fallback builds the static action used when the model cannot answer.
func Fallback(speech string) pkg.AgentAction {
	return pkg.AgentAction{Speech: speech}
}

// rawAction mirrors the wire object with every value left undecoded, so
// models that send numbers as strings (or the reverse) still parse.
type rawAction struct {
	Speech     json.RawMessage `json:"speech"`
	ActionType json.RawMessage `json:"action_type"`
	Field      json.RawMessage `json:"field"`
	Value      json.RawMessage `json:"value"`
	PhotoIndex json.RawMessage `json:"photo_index"`
	IsComplete json.RawMessage `json:"is_complete"`
}

// DecodeAction parses model output into a validated AgentAction.  Code
// fences are stripped first; if the remainder is not a JSON object the first
// balanced {...} substring is tried instead.
func DecodeAction(output string) (pkg.AgentAction, error) {
	text := stripFences(output)
	raw, err := decodeObject(text)
	if err != nil {
		candidate, ok := firstObject(text)
		if !ok {
			return pkg.AgentAction{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw, err = decodeObject(candidate)
		if err != nil {
			return pkg.AgentAction{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return normalize(raw), nil
}

func stripFences(output string) string {
	s := strings.TrimSpace(output)
	if strings.HasPrefix(s, "```") {
		parts := strings.Split(s, "```")
		if len(parts) > 1 {
			s = parts[1]
		}
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	return strings.TrimSpace(s)
}

func decodeObject(text string) (rawAction, error) {
	var raw rawAction
	if !strings.HasPrefix(text, "{") {
		return raw, errors.New("not a JSON object")
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return raw, err
	}
	return raw, nil
}

// firstObject returns the first balanced {...} span, ignoring braces that
// appear inside JSON strings.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
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

// normalize applies defaults and enforces the AgentAction rules:
// fill_field needs a known field and request_photo needs an index in 1..3.
// Violations are downgraded to "no action" and the speech is kept.
func normalize(raw rawAction) pkg.AgentAction {
	var a pkg.AgentAction

	speech, _ := scalarText(raw.Speech)
	a.Speech = strings.TrimSpace(speech)
	if a.Speech == "" {
		a.Speech = ClarifySpeech
	}

	actionType, _ := scalarText(raw.ActionType)
	a.ActionType = pkg.ActionType(strings.ToLower(strings.TrimSpace(actionType)))
	if a.ActionType == "none" || a.ActionType == "null" || !a.ActionType.Valid() {
		a.ActionType = pkg.ActionNone
	}

	if v, ok := scalarText(raw.Value); ok {
		a.Value = &v
	}
	a.IsComplete = truthy(raw.IsComplete)

	switch a.ActionType {
	case pkg.ActionFillField:
		field, _ := scalarText(raw.Field)
		a.Field = pkg.Field(strings.TrimSpace(field))
		if !a.Field.Valid() {
			a.ActionType = pkg.ActionNone
			a.Field = ""
		}
	case pkg.ActionRequestPhoto:
		a.PhotoIndex = photoIndex(raw.PhotoIndex)
		if a.PhotoIndex == 0 {
			a.ActionType = pkg.ActionNone
		}
	}
	return a
}

// scalarText renders a JSON scalar as text.  It reports false for null or
// absent values.
func scalarText(data json.RawMessage) (string, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return n.String(), true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err == nil {
		return buf.String(), true
	}
	return string(data), true
}

func photoIndex(data json.RawMessage) int {
	s, ok := scalarText(data)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > pkg.PhotoCount {
		return 0
	}
	return n
}

func truthy(data json.RawMessage) bool {
	s, ok := scalarText(data)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
