package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/isoplanner/backend/internal/domain"
)

// Schema creates the export history table.
const Schema = `
	CREATE TABLE IF NOT EXISTS isochrone_exports (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id    VARCHAR(64) NOT NULL,
		format        VARCHAR(16) NOT NULL,
		feature_count INT         NOT NULL,
		point_count   INT         NOT NULL,
		document      LONGBLOB,
		created_at    DATETIME(3) NOT NULL,
		INDEX isochrone_exports_created_at_idx (created_at)
	)
`

// Repository implements domain.ExportRepository on MySQL
type Repository struct {
	db *sql.DB
}

// Open connects to MySQL. The DSN must set parseTime=true.
func Open(dsn string) (*Repository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Repository{db: db}, nil
}

// NewRepository wraps an existing handle
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables the repository needs
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("mysql: failed to apply schema: %w", err)
	}
	return nil
}

// SaveExport persists an export record
func (r *Repository) SaveExport(ctx context.Context, rec domain.ExportRecord) error {
	query := `
		INSERT INTO isochrone_exports (
			session_id, format, feature_count, point_count, document, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID, rec.Format, rec.FeatureCount, rec.PointCount, rec.Document, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("mysql: failed to save export: %w", err)
	}
	return nil
}

// ListExports returns the most recent exports, newest first
func (r *Repository) ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	query := `
		SELECT session_id, format, feature_count, point_count, created_at
		FROM isochrone_exports
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to query exports: %w", err)
	}
	defer rows.Close()

	var results []domain.ExportRecord
	for rows.Next() {
		var rec domain.ExportRecord
		if err := rows.Scan(&rec.SessionID, &rec.Format, &rec.FeatureCount, &rec.PointCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("mysql: failed to scan export row: %w", err)
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: failed to iterate exports: %w", err)
	}
	return results, nil
}

// Health checks database connectivity
func (r *Repository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("mysql: health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *Repository) Close() error {
	return r.db.Close()
}
