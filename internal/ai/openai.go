package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/v0xg/formfill/internal/form"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o"

// OpenAIProvider requests form data from OpenAI chat completions
type OpenAIProvider struct {
	base
}

// NewOpenAIProvider creates an OpenAI provider
func NewOpenAIProvider(opts Options, logger *zap.Logger) *OpenAIProvider {
	return &OpenAIProvider{base: newBase(ProviderOpenAI, DefaultOpenAIModel, opts, logger)}
}

// RequestValues implements Requester
func (p *OpenAIProvider) RequestValues(ctx context.Context, fields []form.FieldDescriptor) ([]form.FilledValue, error) {
	return p.request(ctx, fields, p.generate)
}

func (p *OpenAIProvider) generate(ctx context.Context, apiKey, system, user string) (string, error) {
	config := openai.DefaultConfig(apiKey)
	if p.opts.BaseURL != "" {
		config.BaseURL = p.opts.BaseURL
	}
	if p.opts.HTTPClient != nil {
		config.HTTPClient = p.opts.HTTPClient
	}
	client := openai.NewClientWithConfig(config)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: user,
			},
		},
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			return "", p.transportError(ctx, apiErr.HTTPStatusCode, err)
		case errors.As(err, &reqErr):
			return "", p.transportError(ctx, reqErr.HTTPStatusCode, err)
		}
		return "", p.transportError(ctx, 0, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty response from OpenAI", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
