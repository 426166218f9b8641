package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/storywire/storywire/internal/models"
	"github.com/storywire/storywire/internal/resilience"
)

// FeedProviderName is the resilience-layer identity of the HTTP feed provider.
const FeedProviderName = "newsfeed"

const defaultPageSize = 50

// FeedConnector queries a parameterized news-feed API (topic/country/category)
// and maps its JSON response to raw articles. Every request goes through the
// resilience layer, which supplies the credential.
type FeedConnector struct {
	baseURL  string
	pageSize int
	client   *http.Client
	exec     *resilience.Executor
	logger   *slog.Logger
}

// NewFeedConnector creates a connector for the given feed API endpoint.
func NewFeedConnector(baseURL string, exec *resilience.Executor, timeout time.Duration, logger *slog.Logger) *FeedConnector {
	return &FeedConnector{
		baseURL:  baseURL,
		pageSize: defaultPageSize,
		client:   &http.Client{Timeout: timeout},
		exec:     exec,
		logger:   logger,
	}
}

// Name returns the connector identifier.
func (c *FeedConnector) Name() string {
	return FeedProviderName
}

// feedResponse is the provider's typed wire format.
type feedResponse struct {
	Status       string        `json:"status"`
	TotalResults int           `json:"totalResults"`
	Articles     []feedArticle `json:"articles"`
}

type feedArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Fetch retrieves one page of raw articles for the query configuration.
func (c *FeedConnector) Fetch(ctx context.Context, cfg models.FetchConfig) ([]models.RawArticle, error) {
	var articles []models.RawArticle

	err := c.exec.Execute(ctx, FeedProviderName, func(ctx context.Context, apiKey string) error {
		page, err := c.fetchPage(ctx, cfg, apiKey)
		if err != nil {
			return err
		}
		articles = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("feed fetch completed",
		"connector", c.Name(),
		"query", cfg.String(),
		"raw_count", len(articles),
	)

	return articles, nil
}

func (c *FeedConnector) fetchPage(ctx context.Context, cfg models.FetchConfig, apiKey string) ([]models.RawArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	q := url.Values{}
	if cfg.Topic != "" {
		q.Set("q", cfg.Topic)
	}
	if cfg.Country != "" {
		q.Set("country", cfg.Country)
	}
	if cfg.Category != "" {
		q.Set("category", cfg.Category)
	}
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-Api-Key", apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &resilience.RateLimitError{
			Provider:   FeedProviderName,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}

	if parsed.Status != "ok" {
		return nil, fmt.Errorf("feed returned status %q", parsed.Status)
	}

	articles := make([]models.RawArticle, 0, len(parsed.Articles))
	for _, item := range parsed.Articles {
		if item.URL == "" || item.Title == "" {
			continue
		}
		articles = append(articles, models.RawArticle{
			Title:       item.Title,
			Description: item.Description,
			URL:         item.URL,
			ImageURL:    item.URLToImage,
			SourceName:  item.Source.Name,
			PublishedAt: item.PublishedAt,
		})
	}

	return articles, nil
}

// HealthCheck issues a minimal query to verify provider reachability.
func (c *FeedConnector) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.exec.Execute(ctx, FeedProviderName, func(ctx context.Context, apiKey string) error {
		_, err := c.fetchPage(ctx, models.FetchConfig{Country: "us"}, apiKey)
		return err
	})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
