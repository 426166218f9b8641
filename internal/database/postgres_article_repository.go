package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/storywire/storywire/internal/models"
)

// PostgresArticleRepository implements ArticleRepository using PostgreSQL.
type PostgresArticleRepository struct {
	db *sql.DB
}

// NewPostgresArticleRepository creates a new PostgreSQL article repository.
func NewPostgresArticleRepository(db *sql.DB) *PostgresArticleRepository {
	return &PostgresArticleRepository{db: db}
}

const articleColumns = `url_hash, url, headline, summary, embedding, category, country,
	source_name, trust_score, cluster_id, cluster_topic, is_latest, published_at, created_at`

// Insert stores a new article. A unique-violation on url_hash maps to
// ErrDuplicate so concurrent workers can treat the race as an idempotent skip.
func (r *PostgresArticleRepository) Insert(ctx context.Context, article models.Article) error {
	if err := article.Validate(); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}

	query := `
		INSERT INTO articles (
			url_hash, url, headline, summary, embedding, category, country,
			source_name, trust_score, cluster_id, cluster_topic, is_latest, published_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
	`

	var clusterID sql.NullInt64
	if article.ClusterID > 0 {
		clusterID = sql.NullInt64{Int64: article.ClusterID, Valid: true}
	}

	var embedding interface{}
	if article.HasEmbedding() {
		embedding = pq.Array(article.Embedding)
	}

	_, err := r.db.ExecContext(ctx, query,
		article.URLHash,
		article.URL,
		article.Headline,
		article.Summary,
		embedding,
		article.Category,
		article.Country,
		article.SourceName,
		article.TrustScore,
		clusterID,
		article.ClusterTopic,
		article.IsLatest,
		article.PublishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert article: %w", err)
	}

	return nil
}

// GetByHash retrieves an article by its URL hash.
func (r *PostgresArticleRepository) GetByHash(ctx context.Context, urlHash string) (*models.Article, error) {
	query := fmt.Sprintf(`SELECT %s FROM articles WHERE url_hash = $1`, articleColumns)

	article, err := scanArticle(r.db.QueryRowContext(ctx, query, urlHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article by hash: %w", err)
	}
	return article, nil
}

// ExistingHashes returns which of the given URL hashes are already stored.
func (r *PostgresArticleRepository) ExistingHashes(ctx context.Context, urlHashes []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(urlHashes) == 0 {
		return existing, nil
	}

	query := `SELECT url_hash FROM articles WHERE url_hash = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(urlHashes))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		existing[hash] = true
	}

	return existing, rows.Err()
}

// RecentByCountry lists embedded articles for a country, newest first.
func (r *PostgresArticleRepository) RecentByCountry(ctx context.Context, country string, since time.Time, limit int) ([]models.Article, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM articles
		WHERE country = $1 AND published_at > $2 AND embedding IS NOT NULL
		ORDER BY published_at DESC
		LIMIT $3
	`, articleColumns)

	rows, err := r.db.QueryContext(ctx, query, country, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

// LatestByTopic returns the most recent matching article, or nil.
func (r *PostgresArticleRepository) LatestByTopic(ctx context.Context, topic, category, country string, since time.Time) (*models.Article, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM articles
		WHERE cluster_topic = $1 AND category = $2 AND country = $3 AND published_at > $4
		ORDER BY published_at DESC
		LIMIT 1
	`, articleColumns)

	article, err := scanArticle(r.db.QueryRowContext(ctx, query, topic, category, country, since))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest by topic: %w", err)
	}
	return article, nil
}

// ByCluster lists a cluster's articles, newest first.
func (r *PostgresArticleRepository) ByCluster(ctx context.Context, clusterID int64, limit int) ([]models.Article, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM articles
		WHERE cluster_id = $1
		ORDER BY published_at DESC
		LIMIT $2
	`, articleColumns)

	rows, err := r.db.QueryContext(ctx, query, clusterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

// SetLatest flags the given article as the cluster's latest and clears the
// flag on every other member, in one transaction so readers never observe
// two latest articles.
func (r *PostgresArticleRepository) SetLatest(ctx context.Context, clusterID int64, latestHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE articles SET is_latest = FALSE WHERE cluster_id = $1 AND url_hash <> $2 AND is_latest`,
		clusterID, latestHash,
	)
	if err != nil {
		return fmt.Errorf("failed to clear latest flags: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE articles SET is_latest = TRUE WHERE cluster_id = $1 AND url_hash = $2`,
		clusterID, latestHash,
	)
	if err != nil {
		return fmt.Errorf("failed to set latest flag: %w", err)
	}

	return tx.Commit()
}

// MaxClusterID returns the highest cluster id present in the store.
func (r *PostgresArticleRepository) MaxClusterID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(cluster_id) FROM articles`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max cluster id: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// CountByCluster returns the number of stored articles in a cluster.
func (r *PostgresArticleRepository) CountByCluster(ctx context.Context, clusterID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM articles WHERE cluster_id = $1`, clusterID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cluster articles: %w", err)
	}
	return count, nil
}

// DistinctSources returns the distinct source names in a cluster.
func (r *PostgresArticleRepository) DistinctSources(ctx context.Context, clusterID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT source_name FROM articles
		 WHERE cluster_id = $1 AND source_name <> ''
		 ORDER BY source_name`, clusterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct sources: %w", err)
	}
	defer rows.Close()

	sources := make([]string, 0)
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan source name: %w", err)
		}
		sources = append(sources, source)
	}

	return sources, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var article models.Article
	var embedding pq.Float64Array
	var clusterID sql.NullInt64

	err := row.Scan(
		&article.URLHash,
		&article.URL,
		&article.Headline,
		&article.Summary,
		&embedding,
		&article.Category,
		&article.Country,
		&article.SourceName,
		&article.TrustScore,
		&clusterID,
		&article.ClusterTopic,
		&article.IsLatest,
		&article.PublishedAt,
		&article.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	article.Embedding = []float64(embedding)
	if clusterID.Valid {
		article.ClusterID = clusterID.Int64
	}

	return &article, nil
}

func scanArticles(rows *sql.Rows) ([]models.Article, error) {
	articles := make([]models.Article, 0)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}
