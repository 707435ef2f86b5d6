package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/isoplanner/backend/internal/domain"
)

// MockRepository implements domain.ExportRepository in memory for demo mode
type MockRepository struct {
	mu      sync.Mutex
	records []domain.ExportRecord
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{}
}

// SaveExport keeps the record in memory
func (r *MockRepository) SaveExport(ctx context.Context, rec domain.ExportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.Document = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// ListExports returns stored records, newest first
func (r *MockRepository) ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	r.mu.Lock()
	out := append([]domain.ExportRecord(nil), r.records...)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
