package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/storywire/storywire/internal/analysis"
	"github.com/storywire/storywire/internal/cache"
	"github.com/storywire/storywire/internal/clustering"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/ingestion"
	"github.com/storywire/storywire/internal/metrics"
	"github.com/storywire/storywire/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedConnector returns a fixed batch on every fetch.
type scriptedConnector struct {
	batch []models.RawArticle
	err   error
}

func (c *scriptedConnector) Name() string { return "scripted" }

func (c *scriptedConnector) Fetch(ctx context.Context, cfg models.FetchConfig) ([]models.RawArticle, error) {
	return c.batch, c.err
}

func (c *scriptedConnector) HealthCheck(ctx context.Context) error { return nil }

// recordingScheduler records narrative schedule requests.
type recordingScheduler struct {
	mu       sync.Mutex
	clusters []int64
}

func (s *recordingScheduler) Schedule(clusterID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = append(s.clusters, clusterID)
	return true
}

func (s *recordingScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clusters)
}

func feedItem(title, url, source string, age time.Duration) models.RawArticle {
	return models.RawArticle{
		Title:       title,
		Description: "A sufficiently detailed description of the developments reported here.",
		URL:         url,
		ImageURL:    "https://img.example.com/x.jpg",
		SourceName:  source,
		PublishedAt: time.Now().Add(-age),
	}
}

type pipelineFixture struct {
	pipeline  *Pipeline
	repo      *database.MemoryArticleRepository
	mock      *analysis.MockAnalyzer
	scheduler *recordingScheduler
}

func newPipelineFixture(t *testing.T, batch []models.RawArticle) *pipelineFixture {
	t.Helper()

	shared := cache.NewMemory()
	repo := database.NewMemoryArticleRepository()
	mock := analysis.NewMockAnalyzer()
	sched := &recordingScheduler{}
	logger := testLogger()

	cycle, err := ingestion.NewCycleManager(shared, []models.FetchConfig{
		{Topic: "world", Country: "us", Category: "general"},
	}, logger)
	if err != nil {
		t.Fatalf("cycle manager: %v", err)
	}

	collector, err := metrics.NewPipelineCollector()
	if err != nil {
		t.Fatalf("metrics collector: %v", err)
	}

	p := New(
		cycle,
		[]ingestion.Connector{&scriptedConnector{batch: batch}},
		ingestion.NewQualityGate(ingestion.DefaultQualityConfig(), logger),
		ingestion.NewSeenFilter(shared, repo, "test-worker", logger),
		mock,
		clustering.NewAssigner(repo, shared, logger),
		clustering.NewVisibilityOptimizer(repo, logger),
		sched,
		repo,
		collector,
		logger,
		Config{Interval: time.Hour, AnalysisWorkers: 3},
	)

	return &pipelineFixture{pipeline: p, repo: repo, mock: mock, scheduler: sched}
}

// embeddingText mirrors how the pipeline builds the text fed to the
// embedding provider from a feed item.
func embeddingText(item models.RawArticle) string {
	return item.Title + "\n" + item.Description
}

func TestPipeline_FullCycle(t *testing.T) {
	ctx := context.Background()

	rateStory := feedItem("Central bank raises interest rates again", "https://news.example.com/rates", "Reuters", time.Hour)
	rateStoryEcho := feedItem("Central bank raises interest rates today", "https://wire.example.com/rates-echo", "Bloomberg", time.Hour)
	marketsStory := feedItem("Markets rally after central bank decision", "https://news.example.com/markets", "BBC News", 50*time.Minute)
	clickbait := feedItem("7 reasons the housing market is shifting", "https://spam.example.com/list", "Reuters", time.Hour)
	bridgeStory := feedItem("Harbor bridge closure snarls traffic", "https://news.example.com/bridge", "Reuters", 40*time.Minute)
	bridgeFollowup := feedItem("Harbor bridge closure snarls weekend commuter journeys across the city", "https://wire.example.com/bridge-2", "The Guardian", 30*time.Minute)
	volcanoStory := feedItem("Volcano erupts on remote island chain", "https://news.example.com/volcano", "BBC News", time.Hour)
	budgetStory := feedItem("Parliament passes sweeping budget reform", "https://news.example.com/budget", "Reuters", 20*time.Minute)
	roboticsStory := feedItem("Tech firms announce joint venture in robotics", "https://news.example.com/robots", "Bloomberg", 15*time.Minute)
	droughtStory := feedItem("Drought conditions worsen across farming regions", "https://news.example.com/drought", "The Guardian", 10*time.Minute)

	batch := []models.RawArticle{
		rateStory, rateStoryEcho, marketsStory, clickbait, bridgeStory,
		bridgeFollowup, volcanoStory, budgetStory, roboticsStory, droughtStory,
	}

	fixture := newPipelineFixture(t, batch)

	// The volcano story is already in the store from an earlier cycle.
	fixture.repo.Insert(ctx, models.Article{
		URLHash:     models.ComputeURLHash(volcanoStory.URL),
		URL:         volcanoStory.URL,
		Headline:    volcanoStory.Title,
		Country:     "us",
		SourceName:  "BBC News",
		ClusterID:   42,
		IsLatest:    true,
		PublishedAt: volcanoStory.PublishedAt,
	})

	// The rates and markets stories carry vectors similar enough to share a
	// cluster; every other story gets a vector far from the rest so cluster
	// membership is fully determined. The bridge followup cannot be embedded
	// at all and must reach its cluster through the metadata tier.
	fixture.mock.FixedEmbeddings[embeddingText(rateStory)] = []float64{1, 0}
	fixture.mock.FixedEmbeddings[embeddingText(marketsStory)] = []float64{0.9, 0.43588989435}
	fixture.mock.FixedEmbeddings[embeddingText(bridgeStory)] = []float64{0, 0, 1}
	fixture.mock.FixedEmbeddings[embeddingText(budgetStory)] = []float64{0, 1}
	fixture.mock.FixedEmbeddings[embeddingText(roboticsStory)] = []float64{-1, 0}
	fixture.mock.FixedEmbeddings[embeddingText(droughtStory)] = []float64{0, -1}
	fixture.mock.FailEmbedding[embeddingText(bridgeFollowup)] = true

	if err := fixture.pipeline.RunCycle(ctx); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	// 10 fetched, clickbait and the echoed headline rejected, volcano
	// already stored: 7 new articles plus the pre-existing one.
	if got := fixture.repo.Size(); got != 8 {
		t.Fatalf("expected 8 stored articles, got %d", got)
	}

	rates, _ := fixture.repo.GetByHash(ctx, models.ComputeURLHash(rateStory.URL))
	markets, _ := fixture.repo.GetByHash(ctx, models.ComputeURLHash(marketsStory.URL))
	if rates == nil || markets == nil {
		t.Fatal("expected rates and markets stories to be stored")
	}
	if rates.ClusterID <= 0 {
		t.Fatalf("rates story has no cluster: %d", rates.ClusterID)
	}
	if markets.ClusterID != rates.ClusterID {
		t.Errorf("similar vectors should share a cluster: %d vs %d", markets.ClusterID, rates.ClusterID)
	}

	bridge, _ := fixture.repo.GetByHash(ctx, models.ComputeURLHash(bridgeStory.URL))
	followup, _ := fixture.repo.GetByHash(ctx, models.ComputeURLHash(bridgeFollowup.URL))
	if bridge == nil || followup == nil {
		t.Fatal("expected both bridge stories to be stored")
	}
	if followup.HasEmbedding() {
		t.Error("failed embedding must leave the article without a vector")
	}
	if followup.ClusterID != bridge.ClusterID {
		t.Errorf("metadata tier should reunite the bridge stories: %d vs %d", followup.ClusterID, bridge.ClusterID)
	}
	if bridge.ClusterID == rates.ClusterID {
		t.Error("unrelated stories must not share a cluster")
	}

	echo, _ := fixture.repo.GetByHash(ctx, models.ComputeURLHash(rateStoryEcho.URL))
	if echo != nil {
		t.Error("near-duplicate headline should have been dropped at the gate")
	}
	spam, _ := fixture.repo.GetByHash(ctx, models.ComputeURLHash(clickbait.URL))
	if spam != nil {
		t.Error("clickbait should have been dropped at the gate")
	}

	// Every persisted article triggered a narrative check.
	if fixture.scheduler.count() != 7 {
		t.Errorf("expected 7 narrative schedules, got %d", fixture.scheduler.count())
	}

	assertSingleLatest(t, fixture.repo, rates.ClusterID)
	assertSingleLatest(t, fixture.repo, bridge.ClusterID)
}

func assertSingleLatest(t *testing.T, repo *database.MemoryArticleRepository, clusterID int64) {
	t.Helper()

	members, err := repo.ByCluster(context.Background(), clusterID, 0)
	if err != nil {
		t.Fatalf("list cluster failed: %v", err)
	}

	count := 0
	for _, m := range members {
		if m.IsLatest {
			count++
			if m.URLHash != members[0].URLHash {
				t.Errorf("cluster %d: latest flag on %s, expected newest %s", clusterID, m.URLHash, members[0].URLHash)
			}
		}
	}
	if count != 1 {
		t.Errorf("cluster %d: expected exactly one latest, got %d", clusterID, count)
	}
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()

	batch := []models.RawArticle{
		feedItem("Parliament passes sweeping budget reform", "https://news.example.com/budget", "Reuters", time.Hour),
		feedItem("Drought conditions worsen across farming regions", "https://news.example.com/drought", "The Guardian", 30*time.Minute),
	}

	fixture := newPipelineFixture(t, batch)

	if err := fixture.pipeline.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if got := fixture.repo.Size(); got != 2 {
		t.Fatalf("expected 2 stored articles, got %d", got)
	}

	// The same feed content arrives again: seen markers hold it all back.
	if err := fixture.pipeline.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if got := fixture.repo.Size(); got != 2 {
		t.Errorf("rerun must not duplicate articles, got %d", got)
	}
	if fixture.scheduler.count() != 2 {
		t.Errorf("rerun must not reschedule narratives, got %d", fixture.scheduler.count())
	}
}

func TestPipeline_ConnectorFailureDegrades(t *testing.T) {
	ctx := context.Background()

	healthy := &scriptedConnector{batch: []models.RawArticle{
		feedItem("Parliament passes sweeping budget reform", "https://news.example.com/budget", "Reuters", time.Hour),
	}}
	broken := &scriptedConnector{err: context.DeadlineExceeded}

	fixture := newPipelineFixture(t, nil)
	fixture.pipeline.connectors = []ingestion.Connector{broken, healthy}

	if err := fixture.pipeline.RunCycle(ctx); err != nil {
		t.Fatalf("cycle should continue past a broken connector: %v", err)
	}
	if got := fixture.repo.Size(); got != 1 {
		t.Errorf("healthy connector output should persist, got %d articles", got)
	}
}

func TestPipeline_EmptyFetch(t *testing.T) {
	fixture := newPipelineFixture(t, nil)

	if err := fixture.pipeline.RunCycle(context.Background()); err != nil {
		t.Errorf("empty fetch should be a clean no-op: %v", err)
	}
	if fixture.repo.Size() != 0 {
		t.Error("nothing should be stored")
	}
}
