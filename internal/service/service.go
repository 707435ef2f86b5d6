package service

import (
	"github.com/isoplanner/backend/internal/domain"
)

// ExportRepository is re-exported from domain for convenience
type ExportRepository = domain.ExportRepository
