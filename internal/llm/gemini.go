package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"oscan-intake/pkg"
)

// GeminiProvider calls the Gemini generate-content API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider constructs a Gemini-backed provider.  baseURL and
// httpClient are optional.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Generate maps assistant turns to the "model" role and passes the system
// prompt as a system instruction.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History))
	for _, t := range req.History {
		role := "user"
		if t.Role == pkg.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: t.Content}}})
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.System}}},
		Temperature:       genai.Ptr(req.Temperature),
		MaxOutputTokens:   int32(req.MaxTokens),
	}
	// 2.5 models think by default, which costs latency the intake chat
	// cannot afford.
	if strings.Contains(req.Model, "2.5") {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)}
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", geminiError(err)
	}
	return resp.Text(), nil
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return &StatusError{Provider: "gemini", Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
