package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    username TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT users_username_unique UNIQUE (username)
)`,
	`CREATE TABLE IF NOT EXISTS result_records (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users (id),
    video_path TEXT,
    transcription TEXT,
    keywords JSONB,
    seo_description TEXT,
    youtube_rankings JSONB,
    youtube_analytics JSONB,
    created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS result_records_user_created_idx
    ON result_records (user_id, created_at DESC)`,
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
