package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// EmbeddingService turns text into fixed-length vectors for similarity search.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type geminiEmbedder struct {
	client     *genai.Client
	model      string
	vectorSize int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewGeminiEmbedder builds the Gemini-backed embedding client. With an empty
// API key it stays usable and returns zero vectors, so the pipeline can run
// without embedding credentials (retrieval then degrades to no matches).
func NewGeminiEmbedder(apiKey, model string, vectorSize int, timeout time.Duration, logger *zap.Logger) (EmbeddingService, error) {
	e := &geminiEmbedder{
		model:      model,
		vectorSize: vectorSize,
		timeout:    timeout,
		logger:     logger,
	}

	if apiKey == "" {
		logger.Warn("no embedding credentials configured, using zero-vector fallback")
		return e, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	e.client = client

	return e, nil
}

// Embed implements EmbeddingService.
func (e *geminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.client == nil {
		return make([]float32, e.vectorSize), nil
	}

	// Truncate overly long inputs, the embedding model caps input tokens.
	text = truncateAtRuneBoundary(text, 40000)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}

	return result.Embeddings[0].Values, nil
}
