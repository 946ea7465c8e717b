package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/v0xg/formfill/internal/form"
)

// ClaudeProvider requests form data from Anthropic's Claude
type ClaudeProvider struct {
	base
}

// NewClaudeProvider creates a Claude provider
func NewClaudeProvider(opts Options, logger *zap.Logger) *ClaudeProvider {
	return &ClaudeProvider{base: newBase(ProviderClaude, string(anthropic.ModelClaudeSonnet4_5), opts, logger)}
}

// RequestValues implements Requester
func (p *ClaudeProvider) RequestValues(ctx context.Context, fields []form.FieldDescriptor) ([]form.FilledValue, error) {
	return p.request(ctx, fields, p.generate)
}

func (p *ClaudeProvider) generate(ctx context.Context, apiKey, system, user string) (string, error) {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if p.opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.opts.BaseURL))
	}
	if p.opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(p.opts.HTTPClient))
	}
	client := anthropic.NewClient(reqOpts...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.opts.Model),
		MaxTokens: int64(p.opts.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if p.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(p.opts.Temperature))
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", p.transportError(ctx, apiErr.StatusCode, err)
		}
		return "", p.transportError(ctx, 0, err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: empty response from Claude", ErrMalformedResponse)
}
