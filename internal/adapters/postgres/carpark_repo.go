package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// upsertChunk bounds how many rows go into one pgx.Batch.
const upsertChunk = 1000

// CarparkRepo stores the facility catalog. It implements both
// ports.CatalogSource and ports.CatalogWriter.
type CarparkRepo struct {
	db *DB
}

// NewCarparkRepo creates a new CarparkRepo.
func NewCarparkRepo(db *DB) *CarparkRepo {
	return &CarparkRepo{db: db}
}

// Load returns every catalog row ordered by id.
func (r *CarparkRepo) Load(ctx context.Context) ([]domain.FacilityLocation, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT carpark_id, latitude, longitude
		FROM carparks
		ORDER BY carpark_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query carparks: %w", err)
	}
	defer rows.Close()

	var out []domain.FacilityLocation
	for rows.Next() {
		var f domain.FacilityLocation
		if err := rows.Scan(&f.ID, &f.Latitude, &f.Longitude); err != nil {
			return nil, fmt.Errorf("scan carpark: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertBatch inserts or moves facilities using pgx.Batch.
func (r *CarparkRepo) UpsertBatch(ctx context.Context, facilities []domain.FacilityLocation) error {
	for start := 0; start < len(facilities); start += upsertChunk {
		end := min(start+upsertChunk, len(facilities))
		if err := r.upsert(ctx, facilities[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *CarparkRepo) upsert(ctx context.Context, facilities []domain.FacilityLocation) error {
	batch := &pgx.Batch{}
	for _, f := range facilities {
		batch.Queue(`
			INSERT INTO carparks (carpark_id, latitude, longitude, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (carpark_id) DO UPDATE
			SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, updated_at = NOW()
		`, f.ID, f.Latitude, f.Longitude)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range facilities {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// Count returns the number of stored facilities.
func (r *CarparkRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM carparks`).Scan(&n)
	return n, err
}
