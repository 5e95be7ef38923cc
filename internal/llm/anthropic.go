package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"oscan-intake/pkg"
)

// AnthropicProvider calls the Claude messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider constructs a Claude-backed provider.  The SDK's own
// retries are disabled because the gateway owns the retry policy.
func NewAnthropicProvider(apiKey, baseURL string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

// Generate returns the concatenated text blocks of the reply.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(req.History))
	for _, t := range req.History {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == pkg.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages:    msgs,
		Temperature: anthropic.Float(float64(req.Temperature)),
	})
	if err != nil {
		return "", anthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return &StatusError{Provider: "anthropic", Code: apiErr.StatusCode, Message: http.StatusText(apiErr.StatusCode)}
	}
	return err
}
