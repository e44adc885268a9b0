package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/endpix/internal/models"
)

// PostgresStore journals image enhancements in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the enhancements table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS enhancements (
			id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id    VARCHAR(24)  NOT NULL,
			source_key TEXT         NOT NULL,
			result_key TEXT         NOT NULL,
			result_url TEXT         NOT NULL,
			prompt     TEXT         NOT NULL,
			style      VARCHAR(32)  NOT NULL,
			upscaling  VARCHAR(8)   NOT NULL,
			created_at TIMESTAMPTZ  DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create enhancements: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS enhancements_user_created_idx
			ON enhancements (user_id, created_at DESC)
	`); err != nil {
		return fmt.Errorf("create enhancements index: %w", err)
	}
	return nil
}

// InsertEnhancement stores e and fills in its id and creation time.
func (s *PostgresStore) InsertEnhancement(ctx context.Context, e *models.Enhancement) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO enhancements (user_id, source_key, result_key, result_url, prompt, style, upscaling)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id::text, created_at`,
		e.UserID, e.SourceKey, e.ResultKey, e.ResultURL, e.Prompt, e.Style, e.Upscaling,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert enhancement: %w", err)
	}
	return nil
}

// ListEnhancements returns the newest enhancements of a user first.
func (s *PostgresStore) ListEnhancements(ctx context.Context, userID string, limit int) ([]models.Enhancement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id, source_key, result_key, result_url, prompt, style, upscaling, created_at
		 FROM enhancements
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list enhancements: %w", err)
	}
	defer rows.Close()

	var out []models.Enhancement
	for rows.Next() {
		var e models.Enhancement
		if err := rows.Scan(&e.ID, &e.UserID, &e.SourceKey, &e.ResultKey, &e.ResultURL,
			&e.Prompt, &e.Style, &e.Upscaling, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enhancement: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list enhancements: %w", err)
	}
	return out, nil
}
