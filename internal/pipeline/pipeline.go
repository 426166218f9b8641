// Package pipeline orchestrates one ingestion cycle end to end: fetch,
// quality gate, distributed dedup, analysis, embedding, cluster assignment,
// persistence and narrative scheduling.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storywire/storywire/internal/analysis"
	"github.com/storywire/storywire/internal/clustering"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/ingestion"
	"github.com/storywire/storywire/internal/metrics"
	"github.com/storywire/storywire/internal/models"
	"github.com/storywire/storywire/internal/resilience"
)

// NarrativeScheduler is the fire-and-forget hook for narrative checks.
// Scheduling must never block ingestion.
type NarrativeScheduler interface {
	Schedule(clusterID int64) bool
}

// Config holds pipeline tuning parameters.
type Config struct {
	Interval        time.Duration
	AnalysisWorkers int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        10 * time.Minute,
		AnalysisWorkers: 3,
	}
}

// Pipeline runs ingestion cycles on a fixed interval.
type Pipeline struct {
	cycle      *ingestion.CycleManager
	connectors []ingestion.Connector
	gate       *ingestion.QualityGate
	seen       *ingestion.SeenFilter
	analyzer   analysis.Analyzer
	assigner   *clustering.Assigner
	visibility *clustering.VisibilityOptimizer
	narratives NarrativeScheduler
	articles   database.ArticleRepository
	collector  *metrics.PipelineCollector
	logger     *slog.Logger
	config     Config

	mu      sync.Mutex
	running bool
}

// New creates an ingestion pipeline.
func New(
	cycle *ingestion.CycleManager,
	connectors []ingestion.Connector,
	gate *ingestion.QualityGate,
	seen *ingestion.SeenFilter,
	analyzer analysis.Analyzer,
	assigner *clustering.Assigner,
	visibility *clustering.VisibilityOptimizer,
	narratives NarrativeScheduler,
	articles database.ArticleRepository,
	collector *metrics.PipelineCollector,
	logger *slog.Logger,
	config Config,
) *Pipeline {
	return &Pipeline{
		cycle:      cycle,
		connectors: connectors,
		gate:       gate,
		seen:       seen,
		analyzer:   analyzer,
		assigner:   assigner,
		visibility: visibility,
		narratives: narratives,
		articles:   articles,
		collector:  collector,
		logger:     logger,
		config:     config,
	}
}

// Start runs cycles until the context is cancelled. The first cycle runs
// immediately.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("starting ingestion pipeline",
		"connectors", len(p.connectors),
		"interval", p.config.Interval,
		"analysis_workers", p.config.AnalysisWorkers,
	)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if err := p.RunCycle(ctx); err != nil {
		p.logger.Error("ingestion cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline shutting down")
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return ctx.Err()

		case <-ticker.C:
			if err := p.RunCycle(ctx); err != nil {
				p.logger.Error("ingestion cycle failed", "error", err)
			}
		}
	}
}

// RunCycle executes one full ingestion cycle.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	start := time.Now()
	cfg := p.cycle.Next(ctx)

	p.logger.Info("ingestion cycle started",
		"topic", cfg.Topic,
		"country", cfg.Country,
		"category", cfg.Category,
	)

	raw := p.fetchAll(ctx, cfg)
	p.collector.ArticlesFetched(len(raw))
	if len(raw) == 0 {
		p.logger.Info("nothing fetched, cycle complete", "duration", time.Since(start))
		return nil
	}

	accepted := p.gate.Filter(raw)
	for i := 0; i < len(raw)-len(accepted); i++ {
		p.collector.ArticleRejected("quality")
	}

	candidates, err := p.seen.FilterNew(ctx, accepted)
	if err != nil {
		return fmt.Errorf("seen filter failed: %w", err)
	}
	for i := 0; i < len(accepted)-len(candidates); i++ {
		p.collector.DuplicateSkipped("seen")
	}

	if len(candidates) == 0 {
		p.logger.Info("no new articles, cycle complete",
			"fetched", len(raw),
			"duration", time.Since(start),
		)
		return nil
	}

	results := p.analyzeAll(ctx, candidates)
	embeddings := p.embedAll(ctx, results)

	persisted := 0
	for i, cand := range candidates {
		if err := p.processArticle(ctx, cfg, cand, results[i], embeddings[i]); err != nil {
			p.logger.Error("article processing failed",
				"url_hash", cand.URLHash,
				"error", err,
			)
			p.seen.Release(ctx, cand.URLHash)
			continue
		}
		persisted++
	}

	p.logger.Info("ingestion cycle complete",
		"fetched", len(raw),
		"accepted", len(accepted),
		"new", len(candidates),
		"persisted", persisted,
		"duration", time.Since(start),
	)
	return nil
}

// fetchAll collects raw articles from every connector. A connector failure
// degrades the cycle rather than aborting it.
func (p *Pipeline) fetchAll(ctx context.Context, cfg models.FetchConfig) []models.RawArticle {
	var combined []models.RawArticle

	for _, conn := range p.connectors {
		batch, err := conn.Fetch(ctx, cfg)
		if err != nil {
			p.collector.ProviderFailure(conn.Name())
			if resilience.Unavailable(err) {
				p.logger.Warn("connector unavailable, continuing degraded",
					"connector", conn.Name(),
					"error", err,
				)
			} else {
				p.logger.Error("connector fetch failed",
					"connector", conn.Name(),
					"error", err,
				)
			}
			continue
		}
		combined = append(combined, batch...)
	}

	return combined
}

// analyzeAll runs per-article analysis over a bounded worker pool. The
// result slice is index-aligned with the candidates.
func (p *Pipeline) analyzeAll(ctx context.Context, candidates []ingestion.Candidate) []models.AnalysisResult {
	results := make([]models.AnalysisResult, len(candidates))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.config.AnalysisWorkers)

	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, raw models.RawArticle) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			result, err := p.analyzer.Analyze(ctx, raw)
			if err != nil {
				p.logger.Warn("analysis failed, using basic result",
					"title", raw.Title,
					"error", err,
				)
				result = models.BasicAnalysis(raw)
			}
			results[i] = result
		}(i, cand.Raw)
	}

	wg.Wait()
	return results
}

// embedAll generates embeddings for the analyzed articles, index-aligned
// with the input. Batch failures fall back to per-article embedding; a nil
// slot means the article proceeds without a vector.
func (p *Pipeline) embedAll(ctx context.Context, results []models.AnalysisResult) [][]float64 {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Headline + "\n" + r.Summary
	}

	embeddings, err := p.analyzer.EmbedBatch(ctx, texts)
	if err != nil || len(embeddings) != len(texts) {
		p.logger.Warn("batch embedding failed", "error", err)
		embeddings = make([][]float64, len(texts))
	}

	for i := range embeddings {
		if embeddings[i] != nil {
			continue
		}
		vec, err := p.analyzer.Embed(ctx, texts[i])
		if err != nil {
			p.logger.Warn("embedding fallback failed, proceeding without vector",
				"index", i,
				"error", err,
			)
			continue
		}
		embeddings[i] = vec
	}

	return embeddings
}

// processArticle assigns, persists and post-processes one candidate.
func (p *Pipeline) processArticle(
	ctx context.Context,
	cfg models.FetchConfig,
	cand ingestion.Candidate,
	result models.AnalysisResult,
	embedding []float64,
) error {
	publishedAt := cand.Raw.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	article := models.Article{
		URLHash:      cand.URLHash,
		URL:          models.CanonicalURL(cand.Raw.URL),
		Headline:     result.Headline,
		Summary:      result.Summary,
		Embedding:    embedding,
		Category:     result.Category,
		Country:      cfg.Country,
		SourceName:   cand.Raw.SourceName,
		TrustScore:   result.TrustScore,
		ClusterTopic: result.ClusterTopic,
		PublishedAt:  publishedAt,
		CreatedAt:    time.Now(),
	}

	match, err := p.assigner.Assign(ctx, article)
	if err != nil {
		return fmt.Errorf("cluster assignment failed: %w", err)
	}
	article.ClusterID = match.ClusterID
	p.collector.ClusterAssigned(string(match.Tier))

	if match.Duplicate {
		p.logger.Debug("near-duplicate of existing story",
			"url_hash", article.URLHash,
			"cluster_id", match.ClusterID,
			"similarity", match.Similarity,
		)
	}

	if err := article.Validate(); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}

	if err := p.articles.Insert(ctx, article); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			p.collector.DuplicateSkipped("store")
			p.seen.Commit(ctx, article.URLHash)
			return nil
		}
		return fmt.Errorf("insert failed: %w", err)
	}
	p.collector.ArticlePersisted()

	if err := p.visibility.EnsureSingleLatest(ctx, article.ClusterID); err != nil {
		p.logger.Error("latest-flag update failed",
			"cluster_id", article.ClusterID,
			"error", err,
		)
	}

	if p.narratives != nil {
		p.narratives.Schedule(article.ClusterID)
	}

	p.seen.Commit(ctx, article.URLHash)
	return nil
}
