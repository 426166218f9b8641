package database

import (
	"context"
	"errors"
	"time"

	"github.com/storywire/storywire/internal/models"
)

// ErrDuplicate is returned by Insert when an article with the same URL hash
// already exists. Callers treat it as an idempotent skip, not a failure.
var ErrDuplicate = errors.New("database: duplicate article")

// ArticleRepository defines the store operations the pipeline needs for
// articles: point lookups, bulk existence checks, time-window scans and the
// transactional latest-flag update.
type ArticleRepository interface {
	// Insert stores a new article. Returns ErrDuplicate if the URL hash is
	// already present.
	Insert(ctx context.Context, article models.Article) error

	// GetByHash retrieves an article by its URL hash, or nil if absent.
	GetByHash(ctx context.Context, urlHash string) (*models.Article, error)

	// ExistingHashes returns which of the given URL hashes are already stored.
	ExistingHashes(ctx context.Context, urlHashes []string) (map[string]bool, error)

	// RecentByCountry lists articles for a country published since the given
	// time that carry an embedding, newest first.
	RecentByCountry(ctx context.Context, country string, since time.Time, limit int) ([]models.Article, error)

	// LatestByTopic returns the most recent article since the given time with
	// matching cluster topic, category and country, or nil.
	LatestByTopic(ctx context.Context, topic, category, country string, since time.Time) (*models.Article, error)

	// ByCluster lists a cluster's articles, newest first.
	ByCluster(ctx context.Context, clusterID int64, limit int) ([]models.Article, error)

	// SetLatest flags exactly one article in the cluster as latest, all
	// others as not, in a single transaction.
	SetLatest(ctx context.Context, clusterID int64, latestHash string) error

	// MaxClusterID returns the highest cluster id present in the store, or 0.
	MaxClusterID(ctx context.Context) (int64, error)

	// CountByCluster returns the number of stored articles in a cluster.
	CountByCluster(ctx context.Context, clusterID int64) (int, error)

	// DistinctSources returns the distinct source names in a cluster.
	DistinctSources(ctx context.Context, clusterID int64) ([]string, error)
}

// NarrativeRepository stores one synthesized narrative per cluster.
type NarrativeRepository interface {
	// GetByCluster retrieves the cluster's narrative, or nil if none exists.
	GetByCluster(ctx context.Context, clusterID int64) (*models.Narrative, error)

	// Upsert creates the narrative or updates it in place.
	Upsert(ctx context.Context, narrative models.Narrative) error
}
