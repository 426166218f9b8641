package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storywire/storywire/internal/models"
)

// MemoryArticleRepository implements ArticleRepository in memory for
// testing/development. The mutex matters: pipeline tests exercise it from
// concurrent workers.
type MemoryArticleRepository struct {
	mu       sync.Mutex
	articles map[string]models.Article
}

// NewMemoryArticleRepository creates an empty in-memory article repository.
func NewMemoryArticleRepository() *MemoryArticleRepository {
	return &MemoryArticleRepository{
		articles: make(map[string]models.Article),
	}
}

// Insert stores a new article, enforcing URL-hash uniqueness.
func (r *MemoryArticleRepository) Insert(ctx context.Context, article models.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.articles[article.URLHash]; exists {
		return ErrDuplicate
	}

	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now()
	}
	r.articles[article.URLHash] = article
	return nil
}

// GetByHash retrieves an article by URL hash.
func (r *MemoryArticleRepository) GetByHash(ctx context.Context, urlHash string) (*models.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	article, ok := r.articles[urlHash]
	if !ok {
		return nil, nil
	}
	return &article, nil
}

// ExistingHashes returns which of the given hashes are stored.
func (r *MemoryArticleRepository) ExistingHashes(ctx context.Context, urlHashes []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := make(map[string]bool)
	for _, hash := range urlHashes {
		if _, ok := r.articles[hash]; ok {
			existing[hash] = true
		}
	}
	return existing, nil
}

// RecentByCountry lists embedded articles for a country, newest first.
func (r *MemoryArticleRepository) RecentByCountry(ctx context.Context, country string, since time.Time, limit int) ([]models.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.Article, 0)
	for _, article := range r.articles {
		if article.Country == country && article.PublishedAt.After(since) && article.HasEmbedding() {
			result = append(result, article)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PublishedAt.After(result[j].PublishedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// LatestByTopic returns the most recent matching article, or nil.
func (r *MemoryArticleRepository) LatestByTopic(ctx context.Context, topic, category, country string, since time.Time) (*models.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *models.Article
	for hash := range r.articles {
		article := r.articles[hash]
		if article.ClusterTopic != topic || article.Category != category || article.Country != country {
			continue
		}
		if !article.PublishedAt.After(since) {
			continue
		}
		if best == nil || article.PublishedAt.After(best.PublishedAt) {
			copied := article
			best = &copied
		}
	}
	return best, nil
}

// ByCluster lists a cluster's articles, newest first.
func (r *MemoryArticleRepository) ByCluster(ctx context.Context, clusterID int64, limit int) ([]models.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.Article, 0)
	for _, article := range r.articles {
		if article.ClusterID == clusterID {
			result = append(result, article)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PublishedAt.After(result[j].PublishedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// SetLatest marks exactly one article in the cluster as latest.
func (r *MemoryArticleRepository) SetLatest(ctx context.Context, clusterID int64, latestHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, article := range r.articles {
		if article.ClusterID != clusterID {
			continue
		}
		article.IsLatest = hash == latestHash
		r.articles[hash] = article
	}
	return nil
}

// MaxClusterID returns the highest stored cluster id.
func (r *MemoryArticleRepository) MaxClusterID(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var max int64
	for _, article := range r.articles {
		if article.ClusterID > max {
			max = article.ClusterID
		}
	}
	return max, nil
}

// CountByCluster returns the number of articles in a cluster.
func (r *MemoryArticleRepository) CountByCluster(ctx context.Context, clusterID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, article := range r.articles {
		if article.ClusterID == clusterID {
			count++
		}
	}
	return count, nil
}

// DistinctSources returns the distinct source names in a cluster.
func (r *MemoryArticleRepository) DistinctSources(ctx context.Context, clusterID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	sources := make([]string, 0)
	for _, article := range r.articles {
		if article.ClusterID != clusterID || article.SourceName == "" {
			continue
		}
		if !seen[article.SourceName] {
			seen[article.SourceName] = true
			sources = append(sources, article.SourceName)
		}
	}

	sort.Strings(sources)
	return sources, nil
}

// Size returns the number of stored articles. Test helper.
func (r *MemoryArticleRepository) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.articles)
}

// MemoryNarrativeRepository implements NarrativeRepository in memory.
type MemoryNarrativeRepository struct {
	mu         sync.Mutex
	narratives map[int64]models.Narrative
}

// NewMemoryNarrativeRepository creates an empty in-memory narrative repository.
func NewMemoryNarrativeRepository() *MemoryNarrativeRepository {
	return &MemoryNarrativeRepository{
		narratives: make(map[int64]models.Narrative),
	}
}

// GetByCluster retrieves a cluster's narrative, or nil.
func (r *MemoryNarrativeRepository) GetByCluster(ctx context.Context, clusterID int64) (*models.Narrative, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	narrative, ok := r.narratives[clusterID]
	if !ok {
		return nil, nil
	}
	return &narrative, nil
}

// Upsert creates or replaces the cluster's narrative.
func (r *MemoryNarrativeRepository) Upsert(ctx context.Context, narrative models.Narrative) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := narrative.Validate(); err != nil {
		return err
	}
	r.narratives[narrative.ClusterID] = narrative
	return nil
}
