package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/storywire/storywire/internal/models"
)

// RSSConnector supplements the query API with plain RSS feeds for providers
// that have no parameterized endpoint. Feeds are static so no credential or
// key rotation is involved.
type RSSConnector struct {
	feeds  []string
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewRSSConnector creates an RSS connector for the given feed URLs.
func NewRSSConnector(feeds []string, logger *slog.Logger) *RSSConnector {
	return &RSSConnector{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		logger: logger,
	}
}

// Name returns the connector identifier.
func (c *RSSConnector) Name() string {
	return "rss"
}

// Fetch parses all configured feeds. The query configuration's country is
// attached to each article; per-feed failures are logged and skipped so one
// dead feed does not starve the batch.
func (c *RSSConnector) Fetch(ctx context.Context, cfg models.FetchConfig) ([]models.RawArticle, error) {
	var articles []models.RawArticle

	for _, feedURL := range c.feeds {
		feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			c.logger.Warn("failed to parse rss feed", "url", feedURL, "error", err)
			continue
		}

		for _, item := range feed.Items {
			if item.Link == "" || item.Title == "" {
				continue
			}

			published := time.Now()
			if item.PublishedParsed != nil {
				published = *item.PublishedParsed
			}

			sourceName := feed.Title
			if sourceName == "" {
				sourceName = feedURL
			}

			articles = append(articles, models.RawArticle{
				Title:       item.Title,
				Description: item.Description,
				URL:         item.Link,
				ImageURL:    itemImage(item),
				SourceName:  sourceName,
				PublishedAt: published,
			})
		}
	}

	c.logger.Info("rss fetch completed", "feeds", len(c.feeds), "raw_count", len(articles))
	return articles, nil
}

// HealthCheck parses the first configured feed.
func (c *RSSConnector) HealthCheck(ctx context.Context) error {
	if len(c.feeds) == 0 {
		return fmt.Errorf("no rss feeds configured")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := c.parser.ParseURLWithContext(c.feeds[0], ctx); err != nil {
		return fmt.Errorf("rss health check failed: %w", err)
	}
	return nil
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc.Type == "image/jpeg" || enc.Type == "image/png" {
			return enc.URL
		}
	}
	return ""
}
