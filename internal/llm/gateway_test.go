package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscan-intake/pkg"
)

// scriptedProvider replays canned results and records every call.
type scriptedProvider struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   []Request
}

type scriptedResult struct {
	text string
	err  error
}

func (p *scriptedProvider) Generate(_ context.Context, req Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if len(p.results) == 0 {
		return "", &StatusError{Provider: "test", Code: http.StatusInternalServerError}
	}
	r := p.results[0]
	if len(p.results) > 1 {
		p.results = p.results[1:]
	}
	return r.text, r.err
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func always(text string, err error) *scriptedProvider {
	return &scriptedProvider{results: []scriptedResult{{text: text, err: err}}}
}

type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits = append(w.waits, d)
	return nil
}

var history = []pkg.Turn{{Role: pkg.RoleUser, Content: "[SESSION_START] Begin the intake."}}

func newTestGateway(w *waitRecorder, variants ...Variant) *Gateway {
	return NewGateway(variants, Options{RetryWait: 5 * time.Millisecond, Wait: w.wait})
}

func TestConverseNotConfigured(t *testing.T) {
	g := NewGateway(nil, Options{})

	got := g.Converse(context.Background(), history, "system")

	assert.Equal(t, NotConfiguredSpeech, got.Speech)
	assert.Equal(t, pkg.ActionNone, got.ActionType)
	assert.False(t, got.IsComplete)
	assert.False(t, g.Configured())
}

func TestConverseAllVariantsFailWithServerErrors(t *testing.T) {
	w := &waitRecorder{}
	providers := []*scriptedProvider{
		always("", &StatusError{Code: http.StatusInternalServerError}),
		always("", &StatusError{Code: http.StatusServiceUnavailable}),
		always("", &StatusError{Code: http.StatusBadRequest}),
	}
	g := newTestGateway(w,
		Variant{Model: "gemini-2.0-flash-lite", Provider: providers[0]},
		Variant{Model: "gemini-2.0-flash", Provider: providers[1]},
		Variant{Model: "gemini-2.5-flash-lite", Provider: providers[2]},
	)

	got := g.Converse(context.Background(), history, "system")

	assert.Equal(t, Fallback(UnavailableSpeech), got)
	for _, p := range providers {
		assert.Equal(t, 1, p.callCount())
	}
	assert.Empty(t, w.waits)
}

func TestConverseRateLimitedRetriesOncePerVariant(t *testing.T) {
	w := &waitRecorder{}
	first := always("", &StatusError{Code: http.StatusTooManyRequests})
	second := always("", &StatusError{Code: http.StatusTooManyRequests})
	g := newTestGateway(w,
		Variant{Model: "a", Provider: first},
		Variant{Model: "b", Provider: second},
	)

	got := g.Converse(context.Background(), history, "system")

	assert.Equal(t, UnavailableSpeech, got.Speech)
	assert.Equal(t, 2, first.callCount())
	assert.Equal(t, 2, second.callCount())
	assert.Len(t, w.waits, 2)
}

func TestConverseTransportErrorRetriesSameVariant(t *testing.T) {
	w := &waitRecorder{}
	p := &scriptedProvider{results: []scriptedResult{
		{err: errors.New("connection reset by peer")},
		{text: `{"speech":"Hello again","action_type":null}`},
	}}
	g := newTestGateway(w, Variant{Model: "a", Provider: p})

	got := g.Converse(context.Background(), history, "system")

	assert.Equal(t, "Hello again", got.Speech)
	assert.Equal(t, 2, p.callCount())
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, w.waits)
}

func TestConverseMalformedOutputMovesToNextVariant(t *testing.T) {
	w := &waitRecorder{}
	bad := always("I'd rather not answer in JSON.", nil)
	good := always("```json\n{\"speech\":\"Which doctor?\",\"action_type\":null,\"is_complete\":false}\n```", nil)
	g := newTestGateway(w,
		Variant{Model: "a", Provider: bad},
		Variant{Model: "b", Provider: good},
	)

	got := g.Converse(context.Background(), history, "system")

	assert.Equal(t, "Which doctor?", got.Speech)
	assert.Equal(t, 1, bad.callCount())
	assert.Equal(t, 1, good.callCount())
}

func TestConversePassesRequestSettings(t *testing.T) {
	p := always(`{"speech":"ok"}`, nil)
	g := NewGateway([]Variant{{Model: "gemini-2.0-flash", Provider: p}}, Options{})

	g.Converse(context.Background(), history, "the system prompt")

	require.Equal(t, 1, p.callCount())
	req := p.calls[0]
	assert.Equal(t, "gemini-2.0-flash", req.Model)
	assert.Equal(t, "the system prompt", req.System)
	assert.Equal(t, history, req.History)
	assert.InDelta(t, 0.75, req.Temperature, 0.001)
	assert.Equal(t, 200, req.MaxTokens)
}

func TestConverseCancelledContextStops(t *testing.T) {
	p := always("", errors.New("boom"))
	g := NewGateway([]Variant{{Model: "a", Provider: p}, {Model: "b", Provider: p}}, Options{RetryWait: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := g.Converse(ctx, history, "system")

	assert.Equal(t, UnavailableSpeech, got.Speech)
	assert.Equal(t, 0, p.callCount())
}

func TestBuildVariantsSkipsMissingCredentials(t *testing.T) {
	variants, err := BuildVariants(context.Background(),
		[]string{"gemini-2.0-flash-lite", "gpt-4o-mini", "claude-3-5-haiku-latest", "mystery-model"},
		Credentials{OpenAI: "sk-test", Gemini: "your_gemini_api_key_here"})
	require.NoError(t, err)

	require.Len(t, variants, 1)
	assert.Equal(t, "gpt-4o-mini", variants[0].Model)
	assert.IsType(t, &OpenAIProvider{}, variants[0].Provider)
}

func TestBuildVariantsNoCredentials(t *testing.T) {
	variants, err := BuildVariants(context.Background(), []string{"gemini-2.0-flash"}, Credentials{})
	require.NoError(t, err)
	assert.Empty(t, variants)
	assert.False(t, NewGateway(variants, Options{}).Configured())
}
