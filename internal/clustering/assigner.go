package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storywire/storywire/internal/cache"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/models"
)

const (
	// SimilarityThreshold is the minimum cosine similarity for an article to
	// join an existing cluster as a related story.
	SimilarityThreshold = 0.82

	// DuplicateThreshold marks a vector match as literally the same story.
	DuplicateThreshold = 0.92

	// RecentWindow bounds both match tiers to recently published articles.
	RecentWindow = 7 * 24 * time.Hour

	// candidateLimit caps the neighbor scan per assignment.
	candidateLimit = 500

	// counterRecoveryFloor: a freshly minted id below this value suggests the
	// counter cache was wiped, so the store's max id is cross-checked before
	// the id is trusted.
	counterRecoveryFloor = 100

	clusterCounterKey = "cluster:counter"

	// fallbackEpoch anchors the wall-clock-derived fallback id well above any
	// realistically minted counter value.
	fallbackEpoch = 1700000000
)

// Tier identifies which matching tier produced a cluster assignment.
type Tier string

const (
	TierVector   Tier = "vector"
	TierMetadata Tier = "metadata"
	TierNew      Tier = "new"
)

// Match is the tagged result of cluster assignment.
type Match struct {
	Tier       Tier
	ClusterID  int64
	Similarity float64 // set for TierVector only

	// Duplicate marks a vector match so close it is the same story, not
	// merely a related one.
	Duplicate bool
}

// Assigner maps an analyzed article to a story cluster using three tiers:
// vector similarity, exact metadata, then a newly minted cluster id.
type Assigner struct {
	articles database.ArticleRepository
	cache    cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

// NewAssigner creates a cluster assigner.
func NewAssigner(articles database.ArticleRepository, c cache.Cache, logger *slog.Logger) *Assigner {
	return &Assigner{
		articles: articles,
		cache:    c,
		logger:   logger,
		now:      time.Now,
	}
}

// Assign resolves the article's cluster. The tiers are tried in order and
// the first success wins; only store failures surface as errors.
func (a *Assigner) Assign(ctx context.Context, article models.Article) (Match, error) {
	if article.HasEmbedding() {
		match, found, err := a.vectorMatch(ctx, article)
		if err != nil {
			return Match{}, err
		}
		if found {
			return match, nil
		}
	}

	match, found, err := a.metadataMatch(ctx, article)
	if err != nil {
		return Match{}, err
	}
	if found {
		return match, nil
	}

	id, err := a.mintClusterID(ctx)
	if err != nil {
		return Match{}, err
	}

	a.logger.Debug("minted new cluster", "cluster_id", id, "topic", article.ClusterTopic)
	return Match{Tier: TierNew, ClusterID: id}, nil
}

// vectorMatch finds the nearest recent neighbor in the same country.
func (a *Assigner) vectorMatch(ctx context.Context, article models.Article) (Match, bool, error) {
	since := a.now().Add(-RecentWindow)

	candidates, err := a.articles.RecentByCountry(ctx, article.Country, since, candidateLimit)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to load cluster candidates: %w", err)
	}

	var best *models.Article
	var bestSimilarity float64

	for i := range candidates {
		candidate := &candidates[i]
		if candidate.ClusterID == 0 || candidate.URLHash == article.URLHash {
			continue
		}

		similarity := CosineSimilarity(article.Embedding, candidate.Embedding)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = candidate
		}
	}

	if best == nil || bestSimilarity < SimilarityThreshold {
		return Match{}, false, nil
	}

	a.logger.Debug("vector tier matched cluster",
		"cluster_id", best.ClusterID,
		"similarity", bestSimilarity,
	)

	return Match{
		Tier:       TierVector,
		ClusterID:  best.ClusterID,
		Similarity: bestSimilarity,
		Duplicate:  bestSimilarity >= DuplicateThreshold,
	}, true, nil
}

// metadataMatch falls back to an exact topic/category/country match.
func (a *Assigner) metadataMatch(ctx context.Context, article models.Article) (Match, bool, error) {
	if article.ClusterTopic == "" {
		return Match{}, false, nil
	}

	since := a.now().Add(-RecentWindow)

	recent, err := a.articles.LatestByTopic(ctx, article.ClusterTopic, article.Category, article.Country, since)
	if err != nil {
		return Match{}, false, fmt.Errorf("failed to query metadata match: %w", err)
	}
	if recent == nil || recent.ClusterID == 0 {
		return Match{}, false, nil
	}

	a.logger.Debug("metadata tier matched cluster",
		"cluster_id", recent.ClusterID,
		"topic", article.ClusterTopic,
	)

	return Match{Tier: TierMetadata, ClusterID: recent.ClusterID}, true, nil
}

// mintClusterID mints a new id from the shared counter, recovering from a
// wiped counter cache by cross-checking the store's maximum id. If the
// counter itself is unavailable, a wall-clock-derived id is used; that path
// accepts a small collision risk and is logged loudly.
func (a *Assigner) mintClusterID(ctx context.Context) (int64, error) {
	id, err := a.cache.Incr(ctx, clusterCounterKey, 0)
	if err != nil {
		fallback := a.now().Unix() - fallbackEpoch + int64(counterRecoveryFloor)
		a.logger.Error("cluster counter unavailable, using wall-clock fallback id",
			"fallback_id", fallback,
			"error", err,
		)
		return fallback, nil
	}

	if id >= counterRecoveryFloor {
		return id, nil
	}

	// Suspiciously low id: the counter cache may have been wiped. The store
	// is authoritative for already-issued ids.
	storeMax, err := a.articles.MaxClusterID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to cross-check max cluster id: %w", err)
	}

	if storeMax < id {
		return id, nil
	}

	recovered := storeMax + 1
	a.logger.Warn("cluster counter behind store, recovering",
		"counter_id", id,
		"store_max", storeMax,
		"recovered_id", recovered,
	)

	if err := a.cache.Set(ctx, clusterCounterKey, fmt.Sprintf("%d", recovered), 0); err != nil {
		a.logger.Warn("failed to reset cluster counter", "error", err)
	}

	return recovered, nil
}
