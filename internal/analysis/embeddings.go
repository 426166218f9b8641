package analysis

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// embeddingBatchSize is the provider's per-request input limit.
	embeddingBatchSize = 16

	// interChunkDelay paces sequential chunk requests against rate limits.
	interChunkDelay = 200 * time.Millisecond
)

// EmbedBatch generates embeddings for many texts in provider-sized chunks.
// Chunks are requested sequentially; a failed chunk leaves nil slots at its
// input indexes rather than corrupting the ordering of the chunks that
// succeeded. Callers fall back to per-article embedding for nil slots.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))

	for start := 0; start < len(texts); start += embeddingBatchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		vectors, err := c.embedChunk(ctx, chunk)
		if err != nil {
			c.logger.Warn("embedding chunk failed, leaving slots empty",
				"chunk_start", start,
				"chunk_size", len(chunk),
				"error", err,
			)
			continue
		}

		for i, vector := range vectors {
			results[start+i] = vector
		}

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(interChunkDelay):
			}
		}
	}

	return results, nil
}

// Embed generates an embedding for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	var vectors [][]float64

	err := c.exec.Execute(ctx, EmbeddingProviderName, func(ctx context.Context, apiKey string) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		resp, err := openai.NewClient(apiKey).CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.config.EmbeddingModel),
			Input: texts,
		})
		if err != nil {
			return mapOpenAIError(EmbeddingProviderName, err)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
		}

		vectors = make([][]float64, len(texts))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(texts) {
				return fmt.Errorf("embedding index %d out of range", item.Index)
			}
			vector := make([]float64, len(item.Embedding))
			for i, v := range item.Embedding {
				vector[i] = float64(v)
			}
			vectors[item.Index] = vector
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return vectors, nil
}
