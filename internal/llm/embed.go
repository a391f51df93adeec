package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/abhisek/codequiz/internal/metrics"
)

// Embedder is the embedding oracle.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NewEmbedder builds the configured Embedder, or nil when embeddings are
// disabled.
func NewEmbedder(ctx context.Context, cfg EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "":
		return nil, nil
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg)
	case "gemini":
		e, err = NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s embedder: %w", cfg.Provider, err)
	}
	return &countingEmbedder{inner: e}, nil
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

func NewOpenAIEmbedder(cfg EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	}
	// ada-002 rejects the dimensions parameter.
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dims
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, openaiError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("no embedding in OpenAI response")}
	}
	return checkDims(resp.Data[0].Embedding, e.dims)
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// GeminiEmbedder calls the Gemini embedContent endpoint.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

func NewGeminiEmbedder(ctx context.Context, cfg EmbeddingConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(e.dims)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, geminiError(err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("no embedding in Gemini response")}
	}
	return checkDims(resp.Embeddings[0].Values, e.dims)
}

func (e *GeminiEmbedder) Dimensions() int { return e.dims }

func checkDims(vec []float32, want int) ([]float32, error) {
	if want > 0 && len(vec) != want {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("embedding has %d dimensions, want %d", len(vec), want)}
	}
	return vec, nil
}

type countingEmbedder struct {
	inner Embedder
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.inner.Embed(ctx, text)
	metrics.EmbeddingRequests.WithLabelValues(metrics.Status(err)).Inc()
	return vec, err
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }
