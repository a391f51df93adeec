package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/codequiz/internal/store"
)

func TestMockProvider_FIFOThenUnavailable(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 10}},
		Text("Question: What is a closure?"),
	)

	resp, err := mock.Generate(context.Background(), Request{System: "sys"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(resp.Content))
	assert.Equal(t, 10, resp.Usage.InputTokens)

	resp, err = mock.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "Question: What is a closure?", resp.Text())

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	assert.ErrorAs(t, err, &unavail)
	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, "sys", mock.Calls[0].System)
}

func TestMockProvider_Always(t *testing.T) {
	mock := NewMockProvider()
	mock.Always(MockResponse{Err: &ErrRateLimit{}})
	for range 3 {
		_, err := mock.Generate(context.Background(), Request{})
		var rl *ErrRateLimit
		assert.ErrorAs(t, err, &rl)
	}
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(32)
	a, err := e.Embed(context.Background(), "Reverse a linked list")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "reverse a LINKED list")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.Equal(t, 2, e.CallCount())

	e.Err = errors.New("down")
	_, err = e.Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", PurposeFrom(ctx))
	assert.Equal(t, PurposeEvaluation, PurposeFrom(WithPurpose(ctx, PurposeEvaluation)))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"no oracle", Config{}, false},
		{"anthropic without key", Config{Provider: "anthropic"}, true},
		{"openai with key", Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk"}}, false},
		{"openrouter without key", Config{Provider: "openrouter"}, true},
		{"mock", Config{Provider: "mock"}, false},
		{"unknown", Config{Provider: "llama"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() = %v", err)
		})
	}
}

func TestConfigFromEnv_NoKeysDisablesOracle(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("CODEQUIZ_LLM_PROVIDER", "")
	cfg := ConfigFromEnv()
	assert.False(t, cfg.Enabled())
}

func TestConfigFromEnv_Discovers(t *testing.T) {
	t.Setenv("CODEQUIZ_LLM_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	cfg := ConfigFromEnv()
	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "sk-ant", cfg.Anthropic.APIKey)
}

func TestEmbeddingConfigFromEnv_BorrowsOpenAIKey(t *testing.T) {
	t.Setenv("CODEQUIZ_EMBEDDING_PROVIDER", "")
	t.Setenv("CODEQUIZ_EMBEDDING_API_KEY", "")
	cfg := EmbeddingConfigFromEnv(Config{OpenAI: OpenAIConfig{APIKey: "sk-oa"}})
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "sk-oa", cfg.APIKey)
	assert.Equal(t, 1536, cfg.Dimensions)

	none := EmbeddingConfigFromEnv(Config{})
	assert.Equal(t, "", none.Provider)
}

type recordingEventRepo struct {
	events []store.LLMRequestEventData
}

func (r *recordingEventRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.events = append(r.events, data)
	return nil
}

func TestLoggingProvider_RecordsEvent(t *testing.T) {
	repo := &recordingEventRepo{}
	mock := NewMockProvider(Text("hello"))
	p := WithLogging(mock, repo, nil)

	ctx := WithPurpose(context.Background(), PurposeQuestionGen)
	_, err := p.Generate(ctx, Request{System: "sys", Messages: UserMessage("hi")})
	require.NoError(t, err)
	_, err = p.Generate(ctx, Request{})
	require.Error(t, err)

	require.Len(t, repo.events, 2)
	assert.True(t, repo.events[0].Success)
	assert.Equal(t, PurposeQuestionGen, repo.events[0].Purpose)
	assert.Contains(t, repo.events[0].RequestBody, "[system]\nsys")
	assert.Equal(t, "hello", repo.events[0].ResponseBody)
	assert.False(t, repo.events[1].Success)
	assert.NotEmpty(t, repo.events[1].ErrorMessage)
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestLookupCost(t *testing.T) {
	c := LookupCost("gpt-4o-mini")
	require.NotNil(t, c)
	assert.InDelta(t, 0.15+0.6, c.Cost(1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 0.1, LookupCost("text-embedding-ada-002").Cost(1_000_000, 0), 1e-9)
	assert.Nil(t, LookupCost("nope"))
}
