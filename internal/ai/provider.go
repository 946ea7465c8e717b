package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/formfill/internal/form"
	"github.com/v0xg/formfill/internal/store"
)

// Provider names
const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// Requester turns field descriptors into one value per field with a single
// round trip. It never retries.
type Requester interface {
	RequestValues(ctx context.Context, fields []form.FieldDescriptor) ([]form.FilledValue, error)
}

// ExchangeRecorder keeps the last request/response for diagnostics
type ExchangeRecorder interface {
	SaveExchange(store.Exchange) error
}

// Options configures a provider
type Options struct {
	Provider    string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32

	Credentials CredentialSource
	Recorder    ExchangeRecorder
	HTTPClient  *http.Client
}

// CanonicalProvider maps aliases to a provider name, or "" when unknown
func CanonicalProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gemini", "google":
		return ProviderGemini
	case "claude", "anthropic":
		return ProviderClaude
	case "openai", "gpt":
		return ProviderOpenAI
	}
	return ""
}

// NewProvider creates a Requester for opts.Provider
func NewProvider(opts Options, logger *zap.Logger) (Requester, error) {
	switch CanonicalProvider(opts.Provider) {
	case ProviderGemini:
		return NewGeminiProvider(opts, logger), nil
	case ProviderClaude:
		return NewClaudeProvider(opts, logger), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: gemini, claude, openai)", opts.Provider)
	}
}

// generateFunc performs the provider call and returns the raw model text.
// Errors must already be classified.
type generateFunc func(ctx context.Context, apiKey, system, user string) (string, error)

// base holds the provider-independent half of a request
type base struct {
	name   string
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func newBase(name, defaultModel string, opts Options, logger *zap.Logger) base {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return base{
		name:   name,
		opts:   opts,
		logger: logger.Named("ai." + name),
		now:    time.Now,
	}
}

func (b *base) request(ctx context.Context, fields []form.FieldDescriptor, generate generateFunc) ([]form.FilledValue, error) {
	apiKey, err := b.credential()
	if err != nil {
		return nil, err
	}

	user, err := buildUserPrompt(fields, b.now())
	if err != nil {
		return nil, err
	}

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	b.logger.Debug("Requesting form data", zap.String("model", b.opts.Model), zap.Int("fields", len(fields)))
	start := time.Now()
	text, err := generate(ctx, apiKey, systemPrompt, user)
	b.record(ctx, user, text, err)
	if err != nil {
		return nil, err
	}

	values, err := parseFormData(text)
	if err != nil {
		b.logger.Warn("Could not parse provider response", zap.Error(err), zap.String("response", truncate(text, 500)))
		return nil, err
	}

	b.logger.Info("Generated form data",
		zap.String("model", b.opts.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("fields", len(fields)),
		zap.Int("values", len(values)),
	)
	return values, nil
}

func (b *base) credential() (string, error) {
	if b.opts.Credentials == nil {
		return "", ErrMissingCredential
	}
	key, err := b.opts.Credentials.Credential(b.name)
	if err != nil {
		return "", fmt.Errorf("read %s credential: %w", b.name, err)
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrMissingCredential
	}
	return strings.TrimSpace(key), nil
}

func (b *base) record(ctx context.Context, request, response string, callErr error) {
	if b.opts.Recorder == nil {
		return
	}
	ex := store.Exchange{
		RunID:    RunIDFromContext(ctx),
		Provider: b.name,
		Model:    b.opts.Model,
		Request:  request,
		Response: response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	if err := b.opts.Recorder.SaveExchange(ex); err != nil {
		b.logger.Warn("Failed to record exchange", zap.Error(err))
	}
}

// transportError wraps a provider SDK error. Cancellation passes through
// untouched so callers can tell it apart.
func (b *base) transportError(ctx context.Context, status int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &TransportError{Provider: b.name, StatusCode: status, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type runIDKey struct{}

// WithRunID tags ctx with the fill run it belongs to
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id set by WithRunID, or ""
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
