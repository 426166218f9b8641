package clustering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storywire/storywire/internal/database"
)

// visibilityScanLimit bounds the per-cluster article listing. Clusters are
// story-sized, so this is effectively "all of them".
const visibilityScanLimit = 200

// VisibilityOptimizer enforces the feed invariant: within a cluster exactly
// one article, the most recently published, carries is_latest. It always
// recomputes newest-wins from current state, so re-running it (including
// concurrently) converges on the same result.
type VisibilityOptimizer struct {
	articles database.ArticleRepository
	logger   *slog.Logger
}

// NewVisibilityOptimizer creates a visibility optimizer.
func NewVisibilityOptimizer(articles database.ArticleRepository, logger *slog.Logger) *VisibilityOptimizer {
	return &VisibilityOptimizer{articles: articles, logger: logger}
}

// EnsureSingleLatest flags the cluster's newest article as latest and clears
// every other member, in one transaction. Invoked after every successful
// insert into a cluster; safe to re-run.
func (v *VisibilityOptimizer) EnsureSingleLatest(ctx context.Context, clusterID int64) error {
	if clusterID <= 0 {
		return fmt.Errorf("invalid cluster id: %d", clusterID)
	}

	members, err := v.articles.ByCluster(ctx, clusterID, visibilityScanLimit)
	if err != nil {
		return fmt.Errorf("failed to list cluster %d: %w", clusterID, err)
	}
	if len(members) == 0 {
		return nil
	}

	// ByCluster returns newest first.
	newest := members[0]

	if err := v.articles.SetLatest(ctx, clusterID, newest.URLHash); err != nil {
		return fmt.Errorf("failed to update latest flag for cluster %d: %w", clusterID, err)
	}

	v.logger.Debug("cluster visibility updated",
		"cluster_id", clusterID,
		"members", len(members),
		"latest", newest.URLHash,
	)

	return nil
}
