package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// fakeModel is an llms.Model that records calls and replays a canned reply.
type fakeModel struct {
	mu       sync.Mutex
	calls    int
	messages []llms.MessageContent
	opts     llms.CallOptions
	reply    *llms.ContentResponse
	err      error
	block    bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	f.calls++
	f.messages = messages
	f.opts = llms.CallOptions{}
	for _, o := range options {
		o(&f.opts)
	}
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.reply, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func reply(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text, StopReason: "stop"}}}
}

func testConfig() Config {
	return Config{Provider: ProviderOpenAI, Model: "gemini-2.0-flash", Temperature: 0.7}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing model", mutate: func(c *Config) { c.Model = "" }, wantErr: true},
		{name: "temperature too high", mutate: func(c *Config) { c.Temperature = 2.5 }, wantErr: true},
		{name: "negative max tokens", mutate: func(c *Config) { c.MaxTokens = -1 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	cfg := testConfig()
	_, err := NewClient(cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig, "openai without key")

	cfg.APIKey = "test-key"
	cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", c.Model())

	ollamaCfg := Config{Provider: ProviderOllama, Model: "llama3.2", BaseURL: "http://localhost:11434"}
	_, err = NewClient(ollamaCfg, nil)
	require.NoError(t, err)

	_, err = NewClient(Config{Provider: "anthropic", Model: "m"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_Generate(t *testing.T) {
	model := &fakeModel{reply: reply("  ベラは森で目を覚ました。\n")}
	cfg := testConfig()
	cfg.MaxTokens = 256
	c, err := NewClientWithModel(model, cfg, nil)
	require.NoError(t, err)

	answer, err := c.Generate(context.Background(), "質問: ベラはどこで目を覚ましたか？")
	require.NoError(t, err)
	assert.Equal(t, "ベラは森で目を覚ました。", answer)

	assert.Equal(t, 1, model.calls)
	require.Len(t, model.messages, 1)
	assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[0].Role)
	require.Len(t, model.messages[0].Parts, 1)
	assert.Equal(t, llms.TextContent{Text: "質問: ベラはどこで目を覚ましたか？"}, model.messages[0].Parts[0])
	assert.InDelta(t, 0.7, model.opts.Temperature, 1e-9)
	assert.Equal(t, 256, model.opts.MaxTokens)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   *fakeModel
		prompt  string
		wantErr error
		calls   int
	}{
		{name: "empty prompt", model: &fakeModel{reply: reply("x")}, prompt: "   ", wantErr: ErrEmptyPrompt, calls: 0},
		{name: "upstream failure", model: &fakeModel{err: errors.New("503 unavailable")}, prompt: "q", wantErr: ErrGenerationFailed, calls: 1},
		{name: "no choices", model: &fakeModel{reply: &llms.ContentResponse{}}, prompt: "q", wantErr: ErrEmptyResponse, calls: 1},
		{name: "blank choice", model: &fakeModel{reply: reply(" \n")}, prompt: "q", wantErr: ErrEmptyResponse, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClientWithModel(tt.model, testConfig(), nil)
			require.NoError(t, err)

			_, err = c.Generate(context.Background(), tt.prompt)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.calls, tt.model.calls, "generation is never retried")
		})
	}
}

func TestClient_GenerateTimeout(t *testing.T) {
	model := &fakeModel{block: true}
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	c, err := NewClientWithModel(model, cfg, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
