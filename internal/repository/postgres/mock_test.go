package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/isoplanner/backend/internal/domain"
)

var _ domain.ExportRepository = (*MockRepository)(nil)
var _ domain.ExportRepository = (*PostgresRepository)(nil)

func TestMockRepositoryListsNewestFirst(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, format := range []string{"geojson", "shp", "geojson"} {
		rec := domain.ExportRecord{
			SessionID: "s",
			Format:    format,
			Document:  []byte("{}"),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.SaveExport(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.ListExports(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].CreatedAt.Equal(base.Add(2*time.Minute)) || got[1].Format != "shp" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Document != nil {
		t.Fatal("mock should not retain documents")
	}
}

func TestMockRepositoryStampsCreatedAt(t *testing.T) {
	repo := NewMockRepository()
	if err := repo.SaveExport(context.Background(), domain.ExportRecord{Format: "geojson"}); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.ListExports(context.Background(), 0)
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Fatalf("records = %+v", got)
	}
	if err := repo.Health(context.Background()); err != nil {
		t.Fatal(err)
	}
}
