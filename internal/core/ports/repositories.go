package ports

import (
	"context"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// CatalogSource loads the static facility catalog.
type CatalogSource interface {
	Load(ctx context.Context) ([]domain.FacilityLocation, error)
}

// CatalogWriter persists a freshly extracted catalog.
type CatalogWriter interface {
	UpsertBatch(ctx context.Context, facilities []domain.FacilityLocation) error
}

// FavoriteRepository persists per-user favorite facility ids.
type FavoriteRepository interface {
	List(ctx context.Context, email string) ([]string, error)
	Save(ctx context.Context, email string, ids []string) error
}
