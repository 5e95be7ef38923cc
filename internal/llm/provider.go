package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"oscan-intake/pkg"
)

// Request is one generate call against a single model variant.
type Request struct {
	Model       string
	System      string
	History     []pkg.Turn
	Temperature float32
	MaxTokens   int
}

// Provider generates a raw text completion for a request.  Implementations
// translate HTTP failures into *StatusError so the gateway can tell rate
// limiting apart from other upstream errors.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// StatusError is a non-2xx answer from a model API.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Code, e.Message)
}

// statusCode extracts the HTTP status of a provider error, if there is one.
func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// ProviderKind names the API family a model variant belongs to.
type ProviderKind string

const (
	KindGemini    ProviderKind = "gemini"
	KindOpenAI    ProviderKind = "openai"
	KindAnthropic ProviderKind = "anthropic"
)

// KindForModel picks the provider family from the model name prefix.
func KindForModel(model string) (ProviderKind, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "gemini"):
		return KindGemini, true
	case strings.HasPrefix(m, "claude"):
		return KindAnthropic, true
	case strings.HasPrefix(m, "gpt"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return KindOpenAI, true
	}
	return "", false
}

// KeyConfigured reports whether an API key looks real.  Empty keys and the
// "your_..._here" placeholders shipped in sample env files do not count.
func KeyConfigured(key string) bool {
	k := strings.TrimSpace(key)
	if k == "" {
		return false
	}
	return !(strings.HasPrefix(k, "your_") && strings.HasSuffix(k, "_here"))
}
