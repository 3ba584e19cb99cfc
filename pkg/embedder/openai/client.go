// Package openai provides an embedder.Provider backed by the OpenAI
// Embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// defaultDimensions matches text-embedding-ada-002.
const defaultDimensions = 1536

// embeddingModels maps configured model names onto the SDK's embedding
// model enum. An empty name selects Ada v2.
var embeddingModels = map[string]openai.EmbeddingModel{
	"":                          openai.AdaEmbeddingV2,
	"text-embedding-ada-002":    openai.AdaEmbeddingV2,
	"text-search-ada-doc-001":   openai.AdaSearchDocument,
	"text-search-ada-query-001": openai.AdaSearchQuery,
}

// Client is an OpenAI embedding client.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedder.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model is the embedding model name. Defaults to
	// text-embedding-ada-002.
	Model string

	// BaseURL overrides the API base URL (optional).
	BaseURL string

	// Dimensions is the vector dimension. Defaults to the model's
	// output dimension; it must match what the model actually returns,
	// since the embeddings API has no parameter to request a
	// different width.
	Dimensions int
}

// NewClient creates a new OpenAI embedder.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model, ok := embeddingModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("openai embedder: unsupported embedding model %q", cfg.Model)
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = defaultDimensions
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("embedding generation failed: no data returned")
	}

	return toFloat64(resp.Data[0].Embedding), nil
}

// EmbedBatch converts multiple texts to vectors in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: got %d results, expected %d",
			len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, data := range resp.Data {
		embeddings[i] = toFloat64(data.Embedding)
	}

	return embeddings, nil
}

// Dimensions returns the vector dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op; the OpenAI SDK holds no long-lived resources.
func (c *Client) Close() error {
	return nil
}

// toFloat64 widens the API's float32 vector.
func toFloat64(embedding []float32) []float64 {
	widened := make([]float64, len(embedding))
	for i, v := range embedding {
		widened[i] = float64(v)
	}
	return widened
}
