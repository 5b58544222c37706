package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/logging"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
	defaultOllamaModel    = "qwen2.5-coder"
	defaultBaseBackoff    = 1 * time.Second
)

// ErrEmptyResponse is returned when the backend answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Client produces a completion for a single prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LangChainClient implements Client on top of a langchaingo model.
type LangChainClient struct {
	model       llms.Model
	provider    string
	modelName   string
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
	callOpts    []llms.CallOption
	logger      *logging.Logger
}

// Option customizes a LangChainClient.
type Option func(*LangChainClient)

// WithBaseBackoff sets the first retry delay. Later delays double.
func WithBaseBackoff(d time.Duration) Option {
	return func(c *LangChainClient) { c.baseBackoff = d }
}

// New builds a client for the configured provider.
func New(cfg config.LLMConfig, logger *logging.Logger, opts ...Option) (*LangChainClient, error) {
	model, name, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	c := NewWithModel(model, cfg, logger, opts...)
	c.modelName = name
	return c, nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg config.LLMConfig, logger *logging.Logger, opts ...Option) *LangChainClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	callOpts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.MaxTokens))
	}

	c := &LangChainClient{
		model:       model,
		provider:    cfg.Provider,
		modelName:   cfg.Model,
		limiter:     rate.NewLimiter(limit, burst),
		maxRetries:  cfg.MaxRetries,
		baseBackoff: defaultBaseBackoff,
		callOpts:    callOpts,
		logger:      logger.Named("llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newModel(cfg config.LLMConfig) (llms.Model, string, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout.Duration()}
	apiKey := cfg.APIKey.Value()

	switch cfg.Provider {
	case "openai":
		name := orDefault(cfg.Model, defaultOpenAIModel)
		if apiKey == "" {
			// Compatible local servers ignore the token but the client requires one.
			apiKey = "unused"
		}
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(name),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, "", fmt.Errorf("creating openai client: %w", err)
		}
		return m, name, nil

	case "anthropic":
		if apiKey == "" {
			return nil, "", fmt.Errorf("anthropic API key required")
		}
		name := orDefault(cfg.Model, defaultAnthropicModel)
		opts := []anthropic.Option{
			anthropic.WithToken(apiKey),
			anthropic.WithModel(name),
			anthropic.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		m, err := anthropic.New(opts...)
		if err != nil {
			return nil, "", fmt.Errorf("creating anthropic client: %w", err)
		}
		return m, name, nil

	case "ollama":
		name := orDefault(cfg.Model, defaultOllamaModel)
		opts := []ollama.Option{
			ollama.WithModel(name),
			ollama.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, "", fmt.Errorf("creating ollama client: %w", err)
		}
		return m, name, nil

	default:
		return nil, "", fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Complete sends prompt to the model and returns the reply text.
//
// Transient failures are retried up to the configured count with
// exponential backoff. Fatal failures and context cancellation return
// immediately.
func (c *LangChainClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying model call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		start := time.Now()
		text, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, c.callOpts...)
		if err == nil && strings.TrimSpace(text) == "" {
			err = &TransientError{Err: ErrEmptyResponse}
		}
		if err == nil {
			c.logger.Trace(ctx, "model call completed",
				zap.String("provider", c.provider),
				zap.String("model", c.modelName),
				zap.Duration("duration", time.Since(start)),
				zap.Int("prompt_len", len(prompt)),
				zap.Int("reply_len", len(text)),
			)
			return text, nil
		}

		lastErr = classify(err)
		if !IsTransient(lastErr) {
			return "", lastErr
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Provider returns the configured backend name.
func (c *LangChainClient) Provider() string { return c.provider }

// Model returns the model name in use.
func (c *LangChainClient) Model() string { return c.modelName }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
