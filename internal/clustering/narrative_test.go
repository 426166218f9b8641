package clustering

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/storywire/storywire/internal/analysis"
	"github.com/storywire/storywire/internal/database"
	"github.com/storywire/storywire/internal/models"
)

func narrativeMember(hash, source string, clusterID int64, age time.Duration) models.Article {
	return models.Article{
		URLHash:     hash,
		URL:         "https://example.com/" + hash,
		Headline:    "Story " + hash,
		Summary:     "Summary " + hash,
		Country:     "us",
		SourceName:  source,
		ClusterID:   clusterID,
		PublishedAt: time.Now().Add(-age),
	}
}

func seedCluster(ctx context.Context, repo *database.MemoryArticleRepository, clusterID int64, sources ...string) {
	for i, source := range sources {
		repo.Insert(ctx, narrativeMember(
			fmt.Sprintf("c%d-a%d", clusterID, i), source, clusterID, time.Duration(i+1)*time.Hour,
		))
	}
}

func TestNarrativeTrigger_WritesNarrative(t *testing.T) {
	ctx := context.Background()
	articles := database.NewMemoryArticleRepository()
	narratives := database.NewMemoryNarrativeRepository()
	mock := analysis.NewMockAnalyzer()

	seedCluster(ctx, articles, 7, "Reuters", "BBC News", "Bloomberg")

	trigger := NewNarrativeTrigger(articles, narratives, mock, testLogger())

	written, err := trigger.Check(ctx, 7)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !written {
		t.Fatal("qualifying cluster should produce a narrative")
	}

	narrative, err := narratives.GetByCluster(ctx, 7)
	if err != nil {
		t.Fatalf("load narrative failed: %v", err)
	}
	if narrative == nil {
		t.Fatal("narrative not stored")
	}
	if narrative.SourceCount != 3 {
		t.Errorf("expected 3 sources, got %d", narrative.SourceCount)
	}
	if len(narrative.Sources) != 3 {
		t.Errorf("expected distinct source list, got %v", narrative.Sources)
	}
	if narrative.LastUpdated.IsZero() {
		t.Error("last updated must be set")
	}
}

func TestNarrativeTrigger_TooFewArticles(t *testing.T) {
	ctx := context.Background()
	articles := database.NewMemoryArticleRepository()
	narratives := database.NewMemoryNarrativeRepository()
	mock := analysis.NewMockAnalyzer()

	seedCluster(ctx, articles, 7, "Reuters", "BBC News")

	trigger := NewNarrativeTrigger(articles, narratives, mock, testLogger())

	written, err := trigger.Check(ctx, 7)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if written {
		t.Error("two articles must not trigger synthesis")
	}
	if mock.SynthesisCalls() != 0 {
		t.Error("synthesis should not have run")
	}
}

func TestNarrativeTrigger_TooFewSources(t *testing.T) {
	ctx := context.Background()
	articles := database.NewMemoryArticleRepository()
	narratives := database.NewMemoryNarrativeRepository()
	mock := analysis.NewMockAnalyzer()

	// Three articles, but only two distinct outlets.
	seedCluster(ctx, articles, 7, "Reuters", "Reuters", "BBC News")

	trigger := NewNarrativeTrigger(articles, narratives, mock, testLogger())

	written, err := trigger.Check(ctx, 7)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if written {
		t.Error("single-source pileups must not trigger synthesis")
	}
}

func TestNarrativeTrigger_FreshnessGate(t *testing.T) {
	ctx := context.Background()
	articles := database.NewMemoryArticleRepository()
	narratives := database.NewMemoryNarrativeRepository()
	mock := analysis.NewMockAnalyzer()

	seedCluster(ctx, articles, 7, "Reuters", "BBC News", "Bloomberg")

	trigger := NewNarrativeTrigger(articles, narratives, mock, testLogger())

	if _, err := trigger.Check(ctx, 7); err != nil {
		t.Fatalf("initial check failed: %v", err)
	}

	// A fresh narrative suppresses re-synthesis.
	written, err := trigger.Check(ctx, 7)
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if written {
		t.Error("fresh narrative must not be re-synthesized")
	}
	if mock.SynthesisCalls() != 1 {
		t.Errorf("expected 1 synthesis call, got %d", mock.SynthesisCalls())
	}

	// Once the window passes, the narrative refreshes.
	trigger.now = func() time.Time { return time.Now().Add(13 * time.Hour) }

	written, err = trigger.Check(ctx, 7)
	if err != nil {
		t.Fatalf("stale check failed: %v", err)
	}
	if !written {
		t.Error("stale narrative should be re-synthesized")
	}
	if mock.SynthesisCalls() != 2 {
		t.Errorf("expected 2 synthesis calls, got %d", mock.SynthesisCalls())
	}
}

func TestNarrativeTrigger_LimitsSynthesisInput(t *testing.T) {
	ctx := context.Background()
	articles := database.NewMemoryArticleRepository()
	narratives := database.NewMemoryNarrativeRepository()
	mock := analysis.NewMockAnalyzer()

	sources := make([]string, 14)
	for i := range sources {
		sources[i] = fmt.Sprintf("Outlet %d", i)
	}
	seedCluster(ctx, articles, 7, sources...)

	trigger := NewNarrativeTrigger(articles, narratives, mock, testLogger())

	written, err := trigger.Check(ctx, 7)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !written {
		t.Fatal("cluster should qualify")
	}

	narrative, _ := narratives.GetByCluster(ctx, 7)
	if narrative.ExecutiveSummary != "Synthesis of 10 articles." {
		t.Errorf("synthesis should see at most 10 articles, got %q", narrative.ExecutiveSummary)
	}
}

func TestNarrativeTrigger_SynthesisFailure(t *testing.T) {
	ctx := context.Background()
	articles := database.NewMemoryArticleRepository()
	narratives := database.NewMemoryNarrativeRepository()
	mock := analysis.NewMockAnalyzer()
	mock.SynthesisErr = fmt.Errorf("provider unavailable")

	seedCluster(ctx, articles, 7, "Reuters", "BBC News", "Bloomberg")

	trigger := NewNarrativeTrigger(articles, narratives, mock, testLogger())

	written, err := trigger.Check(ctx, 7)
	if err == nil {
		t.Fatal("expected synthesis error to surface")
	}
	if written {
		t.Error("failed synthesis must not report a write")
	}

	narrative, _ := narratives.GetByCluster(ctx, 7)
	if narrative != nil {
		t.Error("failed synthesis must not store a narrative")
	}
}
