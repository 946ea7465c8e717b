package ai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/v0xg/formfill/internal/form"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// formDataSchema constrains Gemini output to {"formData":[{"name","value"}]}
var formDataSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"formData": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":  {Type: genai.TypeString},
					"value": {Type: genai.TypeString},
				},
				Required: []string{"name", "value"},
			},
		},
	},
	Required: []string{"formData"},
}

// GeminiProvider requests form data from the Gemini API
type GeminiProvider struct {
	base
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(opts Options, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{base: newBase(ProviderGemini, DefaultGeminiModel, opts, logger)}
}

// RequestValues implements Requester
func (p *GeminiProvider) RequestValues(ctx context.Context, fields []form.FieldDescriptor) ([]form.FilledValue, error) {
	return p.request(ctx, fields, p.generate)
}

func (p *GeminiProvider) generate(ctx context.Context, apiKey, system, user string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.opts.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.opts.BaseURL},
	})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    formDataSchema,
		MaxOutputTokens:   int32(p.opts.MaxTokens),
	}
	if p.opts.Temperature > 0 {
		config.Temperature = genai.Ptr(p.opts.Temperature)
	}

	resp, err := client.Models.GenerateContent(ctx, p.opts.Model, genai.Text(user), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", p.transportError(ctx, apiErr.Code, err)
		}
		return "", p.transportError(ctx, 0, err)
	}

	if resp.UsageMetadata != nil {
		p.logger.Debug("Gemini usage",
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini did not return any content", ErrMalformedResponse)
	}
	return text, nil
}
