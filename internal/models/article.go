package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RawArticle is a single item as returned by a content-feed provider,
// before any analysis or deduplication has run.
type RawArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	SourceName  string    `json:"source_name"`
	PublishedAt time.Time `json:"published_at"`
}

// Article is the stored, analyzed form of a news article. Identity is the
// URLHash; at most one stored article exists per hash.
type Article struct {
	URLHash      string    `json:"url_hash"`
	URL          string    `json:"url"`
	Headline     string    `json:"headline"`
	Summary      string    `json:"summary"`
	Embedding    []float64 `json:"embedding,omitempty"`
	Category     string    `json:"category"`
	Country      string    `json:"country"`
	SourceName   string    `json:"source_name"`
	TrustScore   int       `json:"trust_score"`
	ClusterID    int64     `json:"cluster_id"` // 0 = not yet assigned; minted ids start at 1
	ClusterTopic string    `json:"cluster_topic"`
	IsLatest     bool      `json:"is_latest"`
	PublishedAt  time.Time `json:"published_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasEmbedding reports whether the article carries an embedding vector.
func (a *Article) HasEmbedding() bool {
	return len(a.Embedding) > 0
}

// Validate checks that the article carries the fields required for persistence.
func (a *Article) Validate() error {
	if a.URLHash == "" {
		return fmt.Errorf("article url hash is required")
	}
	if a.URL == "" {
		return fmt.Errorf("article url is required")
	}
	if a.Headline == "" {
		return fmt.Errorf("article headline is required")
	}
	if a.PublishedAt.IsZero() {
		return fmt.Errorf("article published time is required")
	}
	return nil
}

// trackingParams are query parameters stripped during URL canonicalization so
// that the same story shared with different campaign tags hashes identically.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
}

// CanonicalURL normalizes a URL for identity comparison: lowercased scheme
// and host, no fragment, no tracking parameters, no trailing slash.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// ComputeURLHash returns the canonical identity hash for an article URL.
func ComputeURLHash(raw string) string {
	sum := sha256.Sum256([]byte(CanonicalURL(raw)))
	return hex.EncodeToString(sum[:])
}

// FetchConfig is one entry in the fixed rotation of feed queries.
type FetchConfig struct {
	Topic    string `json:"topic"`
	Country  string `json:"country"`
	Category string `json:"category"`
}

// String renders a config for logging.
func (c FetchConfig) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Topic, c.Country, c.Category)
}
