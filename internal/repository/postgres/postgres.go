package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isoplanner/backend/internal/domain"
)

// Schema creates the export history table.
const Schema = `
	CREATE TABLE IF NOT EXISTS isochrone_exports (
		id            BIGSERIAL PRIMARY KEY,
		session_id    TEXT        NOT NULL,
		format        TEXT        NOT NULL,
		feature_count INTEGER     NOT NULL,
		point_count   INTEGER     NOT NULL,
		document      BYTEA,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS isochrone_exports_created_at_idx ON isochrone_exports (created_at DESC);
`

// PostgresRepository implements domain.ExportRepository
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the tables the repository needs
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return nil
}

// SaveExport persists an export record to PostgreSQL
func (r *PostgresRepository) SaveExport(ctx context.Context, rec domain.ExportRecord) error {
	query := `
		INSERT INTO isochrone_exports (
			session_id, format, feature_count, point_count, document, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.SessionID, rec.Format, rec.FeatureCount, rec.PointCount, rec.Document, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save export: %w", err)
	}

	return nil
}

// ListExports retrieves the most recent exports from PostgreSQL
func (r *PostgresRepository) ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	query := `
		SELECT session_id, format, feature_count, point_count, created_at
		FROM isochrone_exports
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query exports: %w", err)
	}
	defer rows.Close()

	var results []domain.ExportRecord
	for rows.Next() {
		var rec domain.ExportRecord
		if err := rows.Scan(&rec.SessionID, &rec.Format, &rec.FeatureCount, &rec.PointCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan export row: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate exports: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
