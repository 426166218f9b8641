package ingestion

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
	claimTTL = 5 * time.Minute
	seenTTL  = 48 * time.Hour
)

// Candidate pairs a raw article with its computed identity hash as it moves
// through the dedup phases.
type Candidate struct {
	Raw     models.RawArticle
	URLHash string
}

// SeenFilter is the two-phase distributed dedup: a short-TTL claim marker in
// the shared cache gives one worker exclusive ownership of a URL, and a bulk
// store lookup catches URLs whose markers have long expired. Workers that
// crash mid-processing leave only a claim marker, which self-heals by expiry;
// processing is at-least-once by design.
type SeenFilter struct {
	cache    cache.Cache
	articles database.ArticleRepository
	workerID string
	logger   *slog.Logger
}

// NewSeenFilter creates a seen-filter for one worker.
func NewSeenFilter(c cache.Cache, articles database.ArticleRepository, workerID string, logger *slog.Logger) *SeenFilter {
	return &SeenFilter{
		cache:    c,
		articles: articles,
		workerID: workerID,
		logger:   logger,
	}
}

// FilterNew claims each candidate URL and drops those already claimed by
// another worker (phase A) or already present in the store (phase B).
// The returned candidates are owned by this worker until committed,
// released, or claim expiry.
func (f *SeenFilter) FilterNew(ctx context.Context, batch []models.RawArticle) ([]Candidate, error) {
	claimed := make([]Candidate, 0, len(batch))

	for _, raw := range batch {
		hash := models.ComputeURLHash(raw.URL)

		if _, err := f.cache.Get(ctx, seenKey(hash)); err == nil {
			f.logger.Debug("url recently processed", "url", raw.URL)
			continue
		}

		won, err := f.cache.SetNX(ctx, claimKey(hash), f.workerID, claimTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to claim url: %w", err)
		}
		if !won {
			f.logger.Debug("url claimed by another worker", "url", raw.URL)
			continue
		}

		claimed = append(claimed, Candidate{Raw: raw, URLHash: hash})
	}

	if len(claimed) == 0 {
		return claimed, nil
	}

	hashes := make([]string, len(claimed))
	for i, c := range claimed {
		hashes[i] = c.URLHash
	}

	existing, err := f.articles.ExistingHashes(ctx, hashes)
	if err != nil {
		// Release everything we claimed so another worker can retry promptly.
		for _, c := range claimed {
			f.Release(ctx, c.URLHash)
		}
		return nil, fmt.Errorf("failed to check stored urls: %w", err)
	}

	fresh := make([]Candidate, 0, len(claimed))
	for _, c := range claimed {
		if existing[c.URLHash] {
			f.logger.Debug("url already stored", "url", c.Raw.URL)
			f.Release(ctx, c.URLHash)
			continue
		}
		fresh = append(fresh, c)
	}

	return fresh, nil
}

// Commit replaces the short claim marker with the long-lived seen marker.
// Called only after the article has been persisted.
func (f *SeenFilter) Commit(ctx context.Context, urlHash string) {
	if err := f.cache.Set(ctx, seenKey(urlHash), "1", seenTTL); err != nil {
		f.logger.Warn("failed to write seen marker", "url_hash", urlHash, "error", err)
	}
	if err := f.cache.Delete(ctx, claimKey(urlHash)); err != nil {
		f.logger.Warn("failed to delete claim marker", "url_hash", urlHash, "error", err)
	}
}

// Release drops this worker's claim so another worker may retry the URL.
func (f *SeenFilter) Release(ctx context.Context, urlHash string) {
	if err := f.cache.Delete(ctx, claimKey(urlHash)); err != nil {
		f.logger.Warn("failed to release claim marker", "url_hash", urlHash, "error", err)
	}
}

func claimKey(urlHash string) string {
	return "seen:claim:" + urlHash
}

func seenKey(urlHash string) string {
	return "seen:" + urlHash
}
