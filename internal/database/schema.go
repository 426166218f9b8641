package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// schema is applied at startup. Statements are idempotent so concurrent
// workers can all run them safely.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		url_hash      VARCHAR(64) PRIMARY KEY,
		url           TEXT NOT NULL,
		headline      TEXT NOT NULL,
		summary       TEXT NOT NULL DEFAULT '',
		embedding     FLOAT8[],
		category      VARCHAR(64) NOT NULL DEFAULT 'general',
		country       VARCHAR(8) NOT NULL DEFAULT '',
		source_name   TEXT NOT NULL DEFAULT '',
		trust_score   INTEGER NOT NULL DEFAULT 5,
		cluster_id    BIGINT,
		cluster_topic TEXT NOT NULL DEFAULT '',
		is_latest     BOOLEAN NOT NULL DEFAULT FALSE,
		published_at  TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_country_published
		ON articles (country, published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_cluster
		ON articles (cluster_id, published_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_topic
		ON articles (cluster_topic, category, country, published_at DESC)`,
	`CREATE TABLE IF NOT EXISTS narratives (
		cluster_id        BIGINT PRIMARY KEY,
		master_headline   TEXT NOT NULL,
		executive_summary TEXT NOT NULL,
		consensus_points  TEXT[] NOT NULL DEFAULT '{}',
		divergence_points TEXT[] NOT NULL DEFAULT '{}',
		source_count      INTEGER NOT NULL DEFAULT 0,
		sources           TEXT[] NOT NULL DEFAULT '{}',
		last_updated      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the pipeline tables and indexes if they do not exist.
func EnsureSchema(db *sql.DB, logger *slog.Logger) error {
	logger.Info("ensuring database schema")

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	return nil
}
