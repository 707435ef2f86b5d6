package mysql

import (
	"context"
	"testing"

	"github.com/isoplanner/backend/internal/domain"
)

var _ domain.ExportRepository = (*Repository)(nil)

func TestOpenDoesNotDial(t *testing.T) {
	repo, err := Open("user:pass@tcp(127.0.0.1:1)/isochrones?parseTime=true&timeout=100ms")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()

	if err := repo.Health(context.Background()); err == nil {
		t.Fatal("expected health check against a closed port to fail")
	}
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open("not a dsn"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
