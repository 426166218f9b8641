package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/storywire/storywire/internal/models"
)

// PostgresNarrativeRepository implements NarrativeRepository using PostgreSQL.
type PostgresNarrativeRepository struct {
	db *sql.DB
}

// NewPostgresNarrativeRepository creates a new PostgreSQL narrative repository.
func NewPostgresNarrativeRepository(db *sql.DB) *PostgresNarrativeRepository {
	return &PostgresNarrativeRepository{db: db}
}

// GetByCluster retrieves the cluster's narrative, or nil if none exists.
func (r *PostgresNarrativeRepository) GetByCluster(ctx context.Context, clusterID int64) (*models.Narrative, error) {
	query := `
		SELECT cluster_id, master_headline, executive_summary, consensus_points,
		       divergence_points, source_count, sources, last_updated
		FROM narratives
		WHERE cluster_id = $1
	`

	var narrative models.Narrative
	var consensus, divergence, sources pq.StringArray

	err := r.db.QueryRowContext(ctx, query, clusterID).Scan(
		&narrative.ClusterID,
		&narrative.MasterHeadline,
		&narrative.ExecutiveSummary,
		&consensus,
		&divergence,
		&narrative.SourceCount,
		&sources,
		&narrative.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get narrative: %w", err)
	}

	narrative.ConsensusPoints = []string(consensus)
	narrative.DivergencePoints = []string(divergence)
	narrative.Sources = []string(sources)

	return &narrative, nil
}

// Upsert creates the narrative or updates it in place.
func (r *PostgresNarrativeRepository) Upsert(ctx context.Context, narrative models.Narrative) error {
	if err := narrative.Validate(); err != nil {
		return fmt.Errorf("invalid narrative: %w", err)
	}

	query := `
		INSERT INTO narratives (
			cluster_id, master_headline, executive_summary, consensus_points,
			divergence_points, source_count, sources, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cluster_id) DO UPDATE SET
			master_headline = EXCLUDED.master_headline,
			executive_summary = EXCLUDED.executive_summary,
			consensus_points = EXCLUDED.consensus_points,
			divergence_points = EXCLUDED.divergence_points,
			source_count = EXCLUDED.source_count,
			sources = EXCLUDED.sources,
			last_updated = EXCLUDED.last_updated
	`

	_, err := r.db.ExecContext(ctx, query,
		narrative.ClusterID,
		narrative.MasterHeadline,
		narrative.ExecutiveSummary,
		pq.Array(narrative.ConsensusPoints),
		pq.Array(narrative.DivergencePoints),
		narrative.SourceCount,
		pq.Array(narrative.Sources),
		narrative.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert narrative: %w", err)
	}

	return nil
}
