package clustering

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/storywire/storywire/internal/cache"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// vectorAt builds a unit vector whose cosine similarity with [1, 0] is s.
func vectorAt(s float64) []float64 {
	return []float64{s, math.Sqrt(1 - s*s)}
}

func storedArticle(hash string, clusterID int64, embedding []float64, age time.Duration) models.Article {
	return models.Article{
		URLHash:      hash,
		URL:          "https://example.com/" + hash,
		Headline:     "Stored " + hash,
		Embedding:    embedding,
		Category:     "general",
		Country:      "us",
		SourceName:   "Reuters",
		ClusterID:    clusterID,
		ClusterTopic: "stored-topic",
		PublishedAt:  time.Now().Add(-age),
	}
}

func incomingArticle(embedding []float64) models.Article {
	return models.Article{
		URLHash:      "incoming",
		URL:          "https://example.com/incoming",
		Headline:     "Incoming story",
		Embedding:    embedding,
		Category:     "general",
		Country:      "us",
		ClusterTopic: "incoming-topic",
		PublishedAt:  time.Now(),
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float64{1, 0}, []float64{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: expected 1, got %f", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Errorf("opposite vectors: expected -1, got %f", got)
	}
	if got := CosineSimilarity(nil, []float64{1}); got != 0 {
		t.Errorf("empty vector: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}); got != 0 {
		t.Errorf("mismatched dimensions: expected 0, got %f", got)
	}
}

func TestAssigner_VectorTier(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()
	repo.Insert(ctx, storedArticle("neighbor", 7, vectorAt(1.0), time.Hour))

	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	match, err := a.Assign(ctx, incomingArticle(vectorAt(0.85)))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier != TierVector {
		t.Fatalf("expected vector tier, got %s", match.Tier)
	}
	if match.ClusterID != 7 {
		t.Errorf("expected cluster 7, got %d", match.ClusterID)
	}
	if match.Duplicate {
		t.Error("0.85 similarity should not mark duplicate")
	}
}

func TestAssigner_DuplicateThreshold(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()
	repo.Insert(ctx, storedArticle("neighbor", 7, vectorAt(1.0), time.Hour))

	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	match, err := a.Assign(ctx, incomingArticle(vectorAt(0.95)))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier != TierVector || !match.Duplicate {
		t.Errorf("0.95 similarity should mark duplicate, got tier=%s duplicate=%v", match.Tier, match.Duplicate)
	}
}

func TestAssigner_MetadataTier(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()

	stored := storedArticle("prior", 9, nil, 2*time.Hour)
	stored.ClusterTopic = "incoming-topic"
	repo.Insert(ctx, stored)

	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	// No embedding at all: vector tier is skipped entirely.
	match, err := a.Assign(ctx, incomingArticle(nil))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier != TierMetadata {
		t.Fatalf("expected metadata tier, got %s", match.Tier)
	}
	if match.ClusterID != 9 {
		t.Errorf("expected cluster 9, got %d", match.ClusterID)
	}
}

func TestAssigner_VectorBelowThresholdFallsToMetadata(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()

	repo.Insert(ctx, storedArticle("neighbor", 7, vectorAt(1.0), time.Hour))

	sibling := storedArticle("prior", 9, nil, 2*time.Hour)
	sibling.ClusterTopic = "incoming-topic"
	repo.Insert(ctx, sibling)

	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	match, err := a.Assign(ctx, incomingArticle(vectorAt(0.5)))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier != TierMetadata || match.ClusterID != 9 {
		t.Errorf("expected metadata cluster 9, got tier=%s cluster=%d", match.Tier, match.ClusterID)
	}
}

func TestAssigner_NewClusterWhenNothingMatches(t *testing.T) {
	ctx := context.Background()
	a := NewAssigner(database.NewMemoryArticleRepository(), cache.NewMemory(), testLogger())

	first, err := a.Assign(ctx, incomingArticle(vectorAt(0.5)))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if first.Tier != TierNew {
		t.Fatalf("expected new tier, got %s", first.Tier)
	}
	if first.ClusterID <= 0 {
		t.Errorf("minted id must be positive, got %d", first.ClusterID)
	}

	second := incomingArticle(vectorAt(0.5))
	second.URLHash = "incoming-2"
	second.ClusterTopic = "another-topic"
	next, err := a.Assign(ctx, second)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if next.ClusterID <= first.ClusterID {
		t.Errorf("minted ids must be strictly increasing: %d then %d", first.ClusterID, next.ClusterID)
	}
}

func TestAssigner_IgnoresUnassignedAndSelf(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()

	// A perfect-match neighbor that has no cluster yet must not be adopted.
	repo.Insert(ctx, storedArticle("unassigned", 0, vectorAt(1.0), time.Hour))

	// The article's own prior row must not match it to itself.
	self := storedArticle("incoming", 3, vectorAt(1.0), time.Hour)
	repo.Insert(ctx, self)

	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	match, err := a.Assign(ctx, incomingArticle(vectorAt(1.0)))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier == TierVector {
		t.Errorf("neither candidate should vector-match, got cluster %d", match.ClusterID)
	}
}

func TestAssigner_IgnoresStaleNeighbors(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()
	repo.Insert(ctx, storedArticle("old", 7, vectorAt(1.0), 8*24*time.Hour))

	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	match, err := a.Assign(ctx, incomingArticle(vectorAt(0.95)))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier == TierVector {
		t.Error("neighbors beyond the recent window must not match")
	}
}

func TestAssigner_CounterGapRecovery(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryArticleRepository()
	repo.Insert(ctx, storedArticle("existing", 5000, nil, time.Hour))

	// Fresh cache simulates a wiped counter.
	a := NewAssigner(repo, cache.NewMemory(), testLogger())

	article := incomingArticle(nil)
	article.ClusterTopic = "unrelated-topic"

	match, err := a.Assign(ctx, article)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if match.Tier != TierNew {
		t.Fatalf("expected new tier, got %s", match.Tier)
	}
	if match.ClusterID != 5001 {
		t.Errorf("expected recovered id 5001, got %d", match.ClusterID)
	}

	// The counter was reset, so the next mint continues past the store max.
	article.URLHash = "incoming-2"
	next, err := a.Assign(ctx, article)
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	if next.ClusterID != 5002 {
		t.Errorf("expected 5002 after recovery, got %d", next.ClusterID)
	}
}

// downCache fails every operation.
type downCache struct{}

func (downCache) Get(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("cache down")
}

func (downCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return fmt.Errorf("cache down")
}

func (downCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return false, fmt.Errorf("cache down")
}

func (downCache) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("cache down")
}

func (downCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return 0, fmt.Errorf("cache down")
}

func TestAssigner_WallClockFallback(t *testing.T) {
	ctx := context.Background()
	a := NewAssigner(database.NewMemoryArticleRepository(), downCache{}, testLogger())

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	match, err := a.Assign(ctx, incomingArticle(nil))
	if err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	want := fixed.Unix() - fallbackEpoch + counterRecoveryFloor
	if match.ClusterID != want {
		t.Errorf("expected fallback id %d, got %d", want, match.ClusterID)
	}
}
