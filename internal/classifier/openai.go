package classifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// EmbedderOption configures an OpenAIEmbedder.
type EmbedderOption func(*openai.ClientConfig, *OpenAIEmbedder)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) EmbedderOption {
	return func(cfg *openai.ClientConfig, _ *OpenAIEmbedder) {
		if url != "" {
			cfg.BaseURL = url
		}
	}
}

// WithModel sets the embedding model.
func WithModel(model string) EmbedderOption {
	return func(_ *openai.ClientConfig, e *OpenAIEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) EmbedderOption {
	return func(cfg *openai.ClientConfig, _ *OpenAIEmbedder) { cfg.HTTPClient = c }
}

// NewOpenAIEmbedder creates an embedder authenticated with apiKey.
func NewOpenAIEmbedder(apiKey string, opts ...EmbedderOption) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	e := &OpenAIEmbedder{model: string(openai.SmallEmbedding3)}
	for _, opt := range opts {
		opt(&cfg, e)
	}
	e.client = openai.NewClientWithConfig(cfg)
	return e
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("classifier: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("classifier: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
