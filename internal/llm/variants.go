package llm

import (
	"context"

	"oscan-intake/internal/logging"
)

// Credentials holds the API key for each provider family.  Unset keys
// disable every variant of that family.
type Credentials struct {
	Gemini    string
	OpenAI    string
	Anthropic string
}

// Key returns the credential for a provider family.
func (c Credentials) Key(kind ProviderKind) string {
	switch kind {
	case KindGemini:
		return c.Gemini
	case KindOpenAI:
		return c.OpenAI
	case KindAnthropic:
		return c.Anthropic
	}
	return ""
}

// BuildVariants turns model names into gateway variants, keeping their
// order.  Models with an unknown prefix or without a credential are skipped,
// so a deployment with no keys at all gets an empty list.
func BuildVariants(ctx context.Context, models []string, creds Credentials) ([]Variant, error) {
	log := logging.NewLogger("llm")
	providers := map[ProviderKind]Provider{}
	var variants []Variant
	for _, model := range models {
		kind, ok := KindForModel(model)
		if !ok {
			log.WithField("model", model).Warn("unknown model family, skipping variant")
			continue
		}
		key := creds.Key(kind)
		if !KeyConfigured(key) {
			log.WithField("model", model).Debug("no credential for model family, skipping variant")
			continue
		}
		p, ok := providers[kind]
		if !ok {
			var err error
			p, err = newProvider(ctx, kind, key)
			if err != nil {
				return nil, err
			}
			providers[kind] = p
		}
		variants = append(variants, Variant{Model: model, Provider: p})
	}
	return variants, nil
}

func newProvider(ctx context.Context, kind ProviderKind, key string) (Provider, error) {
	switch kind {
	case KindGemini:
		return NewGeminiProvider(ctx, key, "", nil)
	case KindAnthropic:
		return NewAnthropicProvider(key, "", nil), nil
	default:
		return NewOpenAIProvider(key, "", nil), nil
	}
}
