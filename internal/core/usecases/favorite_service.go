package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/geospatial"
)

var ErrNotAuthenticated = errors.New("authentication required")

// FavoriteView is one favorite decorated with live occupancy.
type FavoriteView struct {
	domain.FacilityLocation
	DistanceKm    *float64 `json:"distance_km"`
	DirectionsURL string   `json:"directions_url"`
	domain.Occupancy
	Summary string `json:"summary"`
}

// FavoriteService manages per-user bookmarked facilities.
type FavoriteService struct {
	repo    ports.FavoriteRepository
	catalog *CatalogService
}

// NewFavoriteService creates a new FavoriteService.
func NewFavoriteService(repo ports.FavoriteRepository, catalog *CatalogService) *FavoriteService {
	return &FavoriteService{repo: repo, catalog: catalog}
}

// List returns the user's favorite ids.
func (s *FavoriteService) List(ctx context.Context, email string) ([]string, error) {
	if email == "" {
		return nil, ErrNotAuthenticated
	}
	ids, err := s.repo.List(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Toggle adds id if absent, removes it otherwise. Order of the rest is kept.
func (s *FavoriteService) Toggle(ctx context.Context, email, id string) ([]string, bool, error) {
	if email == "" {
		return nil, false, ErrNotAuthenticated
	}
	if _, err := s.catalog.Lookup(id); err != nil {
		return nil, false, err
	}
	ids, err := s.List(ctx, email)
	if err != nil {
		return nil, false, err
	}

	next := make([]string, 0, len(ids)+1)
	removed := false
	for _, existing := range ids {
		if existing == id {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	if !removed {
		next = append(next, id)
	}

	if err := s.repo.Save(ctx, email, next); err != nil {
		return nil, false, fmt.Errorf("save favorites: %w", err)
	}
	return next, !removed, nil
}

// Details decorates the user's favorites using the given availability map.
// Ids that are no longer in the catalog are skipped.
func (s *FavoriteService) Details(ctx context.Context, email string, avail domain.AvailabilityMap, origin *domain.GeoPoint) ([]FavoriteView, error) {
	ids, err := s.List(ctx, email)
	if err != nil {
		return nil, err
	}
	cat := s.catalog.Snapshot()
	out := make([]FavoriteView, 0, len(ids))
	for _, id := range ids {
		loc, ok := cat.Lookup(id)
		if !ok {
			continue
		}
		occ, ok := avail[id]
		if !ok {
			occ = domain.UnknownOccupancy()
		}
		v := FavoriteView{
			FacilityLocation: loc,
			DirectionsURL:    DirectionsURL(loc.Point(), origin),
			Occupancy:        occ,
			Summary:          AvailabilitySummary(occ),
		}
		if origin != nil {
			d := geospatial.DistanceKm(origin.Lat, origin.Lon, loc.Latitude, loc.Longitude)
			v.DistanceKm = &d
		}
		out = append(out, v)
	}
	return out, nil
}

// AvailabilitySummary renders occupancy as a short line of text.
func AvailabilitySummary(o domain.Occupancy) string {
	switch {
	case o.AvailableLots != nil && o.TotalLots != nil:
		ratio := ""
		if o.OccupancyRatio != nil {
			ratio = fmt.Sprintf(" • Vacancy %.0f%%", math.Round(*o.OccupancyRatio*100))
		}
		return fmt.Sprintf("%d/%d lots%s", *o.AvailableLots, *o.TotalLots, ratio)
	case o.AvailableLots != nil:
		return fmt.Sprintf("%d lots", *o.AvailableLots)
	default:
		return "No live data"
	}
}
