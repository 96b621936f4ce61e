package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbeddingConfig holds configuration for the OpenAI embedding client.
type OpenAIEmbeddingConfig struct {
	APIKey string

	// Model defaults to text-embedding-3-small.
	Model string

	// BaseURL overrides the API root (e.g. a compatible gateway). The "/v1"
	// suffix is appended when missing.
	BaseURL string

	// Dimensions asks text-embedding-3 models for shortened vectors.
	// Zero leaves the model default.
	Dimensions int

	// Timeout defaults to 30s.
	Timeout time.Duration
}

// OpenAIEmbeddingClient implements EmbeddingGenerator with the go-openai SDK.
type OpenAIEmbeddingClient struct {
	cfg            OpenAIEmbeddingConfig
	client         *openai.Client
	circuitBreaker *CircuitBreaker
}

// NewOpenAIEmbeddingClient creates a client, applying defaults to empty fields.
func NewOpenAIEmbeddingClient(cfg OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		base := strings.TrimRight(cfg.BaseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		clientCfg.BaseURL = base
	}

	return &OpenAIEmbeddingClient{
		cfg:            cfg,
		client:         openai.NewClientWithConfig(clientCfg),
		circuitBreaker: NewCircuitBreaker("openai"),
	}
}

// Embed generates an embedding vector for text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai embedding circuit breaker open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *OpenAIEmbeddingClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	rsp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai returned empty embedding")
	}
	return rsp.Data[0].Embedding, nil
}

// GetModel returns the configured model name.
func (c *OpenAIEmbeddingClient) GetModel() string {
	return c.cfg.Model
}

var _ EmbeddingGenerator = (*OpenAIEmbeddingClient)(nil)
