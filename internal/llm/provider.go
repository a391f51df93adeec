// Package llm wraps the generation, evaluation and embedding oracles
// behind provider-neutral interfaces.
package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Provider is a text/JSON generation oracle.
type Provider interface {
	// Generate sends req to the model. When req.Schema is set the provider
	// asks for structured output and validates Content against the schema;
	// otherwise Content holds the raw text reply.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the configured model identifier.
	ModelID() string
}

// Request is a single oracle call.
type Request struct {
	System   string
	Messages []Message

	// Schema requests structured JSON output. Nil means free text.
	Schema *Schema

	MaxTokens int

	// Temperature in [0, 1]. Zero leaves the provider default.
	Temperature float64
}

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Role is the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UserMessage builds a single-turn message list.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// Schema is a named JSON Schema for structured output.
type Schema struct {
	// Name is kebab-case, e.g. "answer-verdict". It doubles as the tool or
	// schema name on providers that require one.
	Name        string
	Description string
	Definition  map[string]any
}

// Response is the oracle's reply.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Text returns Content as trimmed text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(string(r.Content))
}

// Usage is token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
