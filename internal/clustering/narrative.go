package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storywire/storywire/internal/analysis"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/models"
)

const (
	// minArticles and minSources gate synthesis: a narrative needs enough
	// independent coverage to be worth writing.
	minArticles = 3
	minSources  = 3

	// freshnessWindow suppresses re-synthesis of a recently updated narrative.
	freshnessWindow = 12 * time.Hour

	// synthesisArticleLimit caps how many recent articles feed one synthesis.
	synthesisArticleLimit = 10
)

// NarrativeTrigger checks whether a cluster qualifies for narrative
// synthesis and, when it does, produces and upserts the narrative.
type NarrativeTrigger struct {
	articles   database.ArticleRepository
	narratives database.NarrativeRepository
	analyzer   analysis.Analyzer
	logger     *slog.Logger
	now        func() time.Time
}

// NewNarrativeTrigger creates a narrative trigger.
func NewNarrativeTrigger(
	articles database.ArticleRepository,
	narratives database.NarrativeRepository,
	analyzer analysis.Analyzer,
	logger *slog.Logger,
) *NarrativeTrigger {
	return &NarrativeTrigger{
		articles:   articles,
		narratives: narratives,
		analyzer:   analyzer,
		logger:     logger,
		now:        time.Now,
	}
}

// Check runs the gate conditions for a cluster and synthesizes its narrative
// when they all pass. Returns (false, nil) when a gate holds the trigger
// back; that is the common case and not an error.
func (t *NarrativeTrigger) Check(ctx context.Context, clusterID int64) (bool, error) {
	count, err := t.articles.CountByCluster(ctx, clusterID)
	if err != nil {
		return false, fmt.Errorf("failed to count cluster articles: %w", err)
	}
	if count < minArticles {
		return false, nil
	}

	sources, err := t.articles.DistinctSources(ctx, clusterID)
	if err != nil {
		return false, fmt.Errorf("failed to list cluster sources: %w", err)
	}
	if len(sources) < minSources {
		return false, nil
	}

	existing, err := t.narratives.GetByCluster(ctx, clusterID)
	if err != nil {
		return false, fmt.Errorf("failed to load narrative: %w", err)
	}
	if existing != nil && existing.IsFresh(freshnessWindow, t.now()) {
		t.logger.Debug("narrative still fresh, skipping synthesis",
			"cluster_id", clusterID,
			"last_updated", existing.LastUpdated,
		)
		return false, nil
	}

	members, err := t.articles.ByCluster(ctx, clusterID, synthesisArticleLimit)
	if err != nil {
		return false, fmt.Errorf("failed to load cluster articles: %w", err)
	}

	result, err := t.analyzer.Synthesize(ctx, members)
	if err != nil {
		return false, fmt.Errorf("narrative synthesis failed for cluster %d: %w", clusterID, err)
	}

	narrative := models.Narrative{
		ClusterID:        clusterID,
		MasterHeadline:   result.MasterHeadline,
		ExecutiveSummary: result.ExecutiveSummary,
		ConsensusPoints:  result.ConsensusPoints,
		DivergencePoints: result.DivergencePoints,
		SourceCount:      len(sources),
		Sources:          sources,
		LastUpdated:      t.now(),
	}

	if err := t.narratives.Upsert(ctx, narrative); err != nil {
		return false, fmt.Errorf("failed to upsert narrative: %w", err)
	}

	t.logger.Info("narrative written",
		"cluster_id", clusterID,
		"articles", count,
		"sources", len(sources),
		"updated", existing != nil,
	)

	return true, nil
}
