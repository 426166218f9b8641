// Package analysis wraps the AI provider behind typed, degradable calls:
// per-article analysis, batch embedding generation and cluster narrative
// synthesis. Every outbound request goes through the resilience layer.
package analysis

import (
	"context"

	"github.com/storywire/storywire/internal/models"
)

// Analyzer is the provider contract the pipeline depends on.
type Analyzer interface {
	// Analyze produces structured analysis for one article. Never fails the
	// article for provider trouble: unavailable providers and unparsable
	// responses degrade to a basic result instead.
	Analyze(ctx context.Context, raw models.RawArticle) (models.AnalysisResult, error)

	// Embed generates an embedding vector for one text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch generates embeddings for many texts. The result always has
	// one slot per input, in input order; slots for failed chunks are nil
	// and callers must treat the result as best effort.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Synthesize produces a narrative summary for a cluster's articles.
	Synthesize(ctx context.Context, articles []models.Article) (models.SynthesisResult, error)
}
