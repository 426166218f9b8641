package ingestion

import (
	"context"

	"github.com/storywire/storywire/internal/models"
)

// Connector defines the interface that all content-feed connectors implement.
type Connector interface {
	// Name returns the unique identifier for this connector.
	Name() string

	// Fetch retrieves a page of raw articles for the given query configuration.
	Fetch(ctx context.Context, cfg models.FetchConfig) ([]models.RawArticle, error)

	// HealthCheck verifies the connector can reach its provider.
	HealthCheck(ctx context.Context) error
}
