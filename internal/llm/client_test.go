package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/logging"
)

// scriptedModel replies with the queued results in order.
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tc.Text)
			}
		}
	}
	if len(m.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: r.text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{Provider: "openai", Model: "test", RateLimit: 1000, Burst: 10, MaxRetries: 2, MaxTokens: 100}
}

func TestComplete_Success(t *testing.T) {
	model := &scriptedModel{replies: []reply{{text: "hello"}}}
	c := NewWithModel(model, testConfig(), logging.NewNop())

	got, err := c.Complete(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, []string{"say hello"}, model.prompts)
}

func TestComplete_RetriesTransient(t *testing.T) {
	model := &scriptedModel{replies: []reply{
		{err: errors.New("API returned unexpected status code: 503")},
		{text: "   "},
		{text: "ok"},
	}}
	tl := logging.NewTestLogger()
	c := NewWithModel(model, testConfig(), tl.Logger, WithBaseBackoff(time.Millisecond))

	got, err := c.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Len(t, model.prompts, 3)
	assert.Equal(t, 2, tl.FilterMessage("retrying model call").Len())
}

func TestComplete_FatalNotRetried(t *testing.T) {
	model := &scriptedModel{replies: []reply{
		{err: errors.New("invalid api key")},
		{text: "unreachable"},
	}}
	c := NewWithModel(model, testConfig(), nil, WithBaseBackoff(time.Millisecond))

	_, err := c.Complete(context.Background(), "p")
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Len(t, model.prompts, 1)
}

func TestComplete_MaxRetriesExceeded(t *testing.T) {
	model := &scriptedModel{replies: []reply{
		{err: errors.New("429 too many requests")},
		{err: errors.New("429 too many requests")},
		{err: errors.New("429 too many requests")},
	}}
	c := NewWithModel(model, testConfig(), nil, WithBaseBackoff(time.Millisecond))

	_, err := c.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.True(t, IsTransient(err))
	assert.Len(t, model.prompts, 3)
}

func TestComplete_ContextCancelledDuringBackoff(t *testing.T) {
	model := &scriptedModel{replies: []reply{{err: errors.New("timeout")}, {text: "late"}}}
	c := NewWithModel(model, testConfig(), nil, WithBaseBackoff(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.True(t, IsTransient(classify(errors.New("server overloaded"))))
	assert.False(t, IsTransient(classify(errors.New("bad request"))))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)

	already := &FatalError{Err: errors.New("x")}
	assert.Same(t, already, classify(already))
}

func TestNew_Providers(t *testing.T) {
	cfg := testConfig()
	cfg.APIKey = config.Secret("sk-test")
	cfg.Timeout = config.Duration(time.Second)

	c, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())
	assert.Equal(t, "test", c.Model())

	cfg.Provider = "ollama"
	cfg.Model = ""
	c, err = New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultOllamaModel, c.Model())

	cfg.Provider = "anthropic"
	cfg.APIKey = ""
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "API key required")

	cfg.Provider = "bard"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "unknown provider")
}
