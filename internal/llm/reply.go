package llm

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Normalized stop reasons.
const (
	StopEnd       = "end"
	StopMaxTokens = "max_tokens"
)

// finish applies the structured-output contract every provider shares: a
// truncated structured reply is ErrMaxTokensExceeded and a complete one
// must satisfy req.Schema.
func finish(req Request, resp *Response) (*Response, error) {
	if resp.StopReason == "" {
		resp.StopReason = StopEnd
	}
	if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
	}
	if req.Schema == nil {
		return resp, nil
	}
	if resp.StopReason == StopMaxTokens {
		return nil, &ErrMaxTokensExceeded{Content: resp.Content}
	}
	if err := ValidateJSON(req.Schema, resp.Content); err != nil {
		return nil, err
	}
	return resp, nil
}

// emptyReply reports a response without usable content.
func emptyReply(provider, what string) error {
	return &ErrInvalidResponse{Err: &replyError{provider: provider, what: what}}
}

type replyError struct{ provider, what string }

func (e *replyError) Error() string { return "no " + e.what + " in " + e.provider + " response" }

// classifyStatus maps a provider HTTP status onto the oracle error types.
// header may be nil when the SDK does not expose it.
func classifyStatus(status int, header http.Header, err error) error {
	if status == http.StatusTooManyRequests {
		return &ErrRateLimit{RetryAfter: retryAfter(header, time.Now()), Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP
// date. Missing or malformed values yield zero.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// rawText wraps a provider's text reply as Content.
func rawText(s string) json.RawMessage {
	return json.RawMessage(s)
}
