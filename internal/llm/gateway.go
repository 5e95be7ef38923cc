package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"oscan-intake/internal/logging"
	"oscan-intake/pkg"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultRetryWait   = time.Second
	defaultTemperature = 0.75
	defaultMaxTokens   = 200
	// triesPerVariant is the first request plus one retry after a 429 or a
	// transport error.
	triesPerVariant = 2
)

// Variant is one model endpoint, tried in the order given to NewGateway.
type Variant struct {
	Model    string
	Provider Provider
}

// Options tunes the gateway.  Zero values pick the defaults.
type Options struct {
	Timeout     time.Duration
	RetryWait   time.Duration
	Temperature float32
	MaxTokens   int
	// Wait pauses between retries; tests replace it to avoid sleeping.
	Wait func(ctx context.Context, d time.Duration) error
}

// Gateway calls the conversational model with fallback across variants.
// Converse never fails: every error path ends in a static fallback action.
type Gateway struct {
	variants []Variant
	opts     Options
	log      *logrus.Entry
}

// NewGateway builds a gateway over the given variants.  An empty list means
// the model service is not configured.
func NewGateway(variants []Variant, opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Wait == nil {
		opts.Wait = sleep
	}
	return &Gateway{
		variants: append([]Variant(nil), variants...),
		opts:     opts,
		log:      logging.NewLogger("llm"),
	}
}

// Configured reports whether at least one variant is available.
func (g *Gateway) Configured() bool { return len(g.variants) > 0 }

// Models returns the variant model names in priority order.
func (g *Gateway) Models() []string {
	out := make([]string, len(g.variants))
	for i, v := range g.variants {
		out[i] = v.Model
	}
	return out
}

// outcome is the result of one attempt against one variant.
type outcome int

const (
	outcomeOK outcome = iota
	// outcomeRetry means the same variant may be tried again after a pause.
	outcomeRetry
	// outcomeNext means this variant is done; move to the next one.
	outcomeNext
)

// Converse sends the history and system instructions to the first variant
// that produces a usable action.
func (g *Gateway) Converse(ctx context.Context, history []pkg.Turn, system string) pkg.AgentAction {
	if !g.Configured() {
		g.log.Warn("no model variant configured, returning fallback")
		return Fallback(NotConfiguredSpeech)
	}
	if len(history) == 0 {
		g.log.Error("converse called with empty history")
		return Fallback(UnavailableSpeech)
	}
	for _, v := range g.variants {
		if action, ok := g.tryVariant(ctx, v, history, system); ok {
			return action
		}
		if ctx.Err() != nil {
			break
		}
	}
	g.log.WithField("variants", len(g.variants)).Error("all model variants failed")
	return Fallback(UnavailableSpeech)
}

func (g *Gateway) tryVariant(ctx context.Context, v Variant, history []pkg.Turn, system string) (pkg.AgentAction, bool) {
	for try := 1; try <= triesPerVariant; try++ {
		action, out := g.attempt(ctx, v, try, history, system)
		switch out {
		case outcomeOK:
			return action, true
		case outcomeNext:
			return pkg.AgentAction{}, false
		}
		if try == triesPerVariant {
			return pkg.AgentAction{}, false
		}
		if err := g.opts.Wait(ctx, g.opts.RetryWait); err != nil {
			return pkg.AgentAction{}, false
		}
	}
	return pkg.AgentAction{}, false
}

func (g *Gateway) attempt(ctx context.Context, v Variant, try int, history []pkg.Turn, system string) (pkg.AgentAction, outcome) {
	log := g.log.WithFields(logrus.Fields{"model": v.Model, "attempt": try})
	if ctx.Err() != nil {
		return pkg.AgentAction{}, outcomeNext
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	started := time.Now()
	raw, err := v.Provider.Generate(callCtx, Request{
		Model:       v.Model,
		System:      system,
		History:     history,
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	})
	log = log.WithField("latency_ms", time.Since(started).Milliseconds())

	if err != nil {
		if code, ok := statusCode(err); ok {
			log = log.WithField("status", code)
			if code == http.StatusTooManyRequests {
				log.Warn("model rate limited")
				return pkg.AgentAction{}, outcomeRetry
			}
			log.WithError(err).Warn("model returned error status")
			return pkg.AgentAction{}, outcomeNext
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return pkg.AgentAction{}, outcomeNext
		}
		log.WithError(err).Warn("model transport error")
		return pkg.AgentAction{}, outcomeRetry
	}

	action, err := DecodeAction(raw)
	if err != nil {
		log.WithError(err).Warn("model output could not be parsed")
		return pkg.AgentAction{}, outcomeNext
	}
	log.Debug("model answered")
	return action, outcomeOK
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
