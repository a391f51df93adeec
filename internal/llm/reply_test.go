package llm

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinish(t *testing.T) {
	t.Run("free text passes through", func(t *testing.T) {
		resp, err := finish(Request{}, &Response{Content: rawText("hello"), Usage: Usage{InputTokens: 3, OutputTokens: 4}})
		require.NoError(t, err)
		assert.Equal(t, StopEnd, resp.StopReason)
		assert.Equal(t, 7, resp.Usage.TotalTokens)
	})

	t.Run("truncated structured reply", func(t *testing.T) {
		_, err := finish(Request{Schema: verdictSchema()}, &Response{Content: rawText(`{"correct":`), StopReason: StopMaxTokens})
		var maxTok *ErrMaxTokensExceeded
		require.ErrorAs(t, err, &maxTok)
		assert.Equal(t, `{"correct":`, string(maxTok.Content))
	})

	t.Run("schema violation keeps content", func(t *testing.T) {
		_, err := finish(Request{Schema: verdictSchema()}, &Response{Content: rawText(`{"correct":"yes"}`)})
		content, ok := InvalidContent(err)
		require.True(t, ok)
		assert.Contains(t, string(content), "yes")
	})
}

func TestClassifyStatus(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	err := classifyStatus(http.StatusTooManyRequests, h, errors.New("slow down"))

	var rl *ErrRateLimit
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)

	var unavail *ErrProviderUnavailable
	assert.ErrorAs(t, classifyStatus(http.StatusBadGateway, nil, errors.New("down")), &unavail)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		h := http.Header{}
		if tt.value != "" {
			h.Set("Retry-After", tt.value)
		}
		assert.Equal(t, tt.want, retryAfter(h, now), "Retry-After %q", tt.value)
	}
}
