package usecases

import (
	"fmt"
	"sort"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// ParseSortKey validates a sort key. Empty means distance.
func ParseSortKey(s string) (domain.SortKey, error) {
	switch domain.SortKey(s) {
	case "":
		return domain.SortByDistance, nil
	case domain.SortByDistance, domain.SortByPrice, domain.SortByAvailability:
		return domain.SortKey(s), nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

// SortFacilities returns a sorted copy of in:
//   - distance: nearest first
//   - price: cheapest estimated fee first, unknown fee last
//   - availability: most available lots first, unknown last
//
// Ties fall back to distance, then id.
func SortFacilities(in []domain.NearbyFacility, key domain.SortKey) []domain.NearbyFacility {
	out := make([]domain.NearbyFacility, len(in))
	copy(out, in)

	byDistance := func(a, b domain.NearbyFacility) bool {
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.ID < b.ID
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch key {
		case domain.SortByPrice:
			switch {
			case a.EstimatedFee == nil && b.EstimatedFee == nil:
			case a.EstimatedFee == nil:
				return false
			case b.EstimatedFee == nil:
				return true
			case *a.EstimatedFee != *b.EstimatedFee:
				return *a.EstimatedFee < *b.EstimatedFee
			}
		case domain.SortByAvailability:
			switch {
			case a.AvailableLots == nil && b.AvailableLots == nil:
			case a.AvailableLots == nil:
				return false
			case b.AvailableLots == nil:
				return true
			case *a.AvailableLots != *b.AvailableLots:
				return *a.AvailableLots > *b.AvailableLots
			}
		}
		return byDistance(a, b)
	})
	return out
}

// MergeAvailability overlays known occupancy from the availability map onto
// a copy of the facilities. Unknown map entries never replace known data.
func MergeAvailability(in []domain.NearbyFacility, avail domain.AvailabilityMap) []domain.NearbyFacility {
	out := make([]domain.NearbyFacility, len(in))
	for i, f := range in {
		if occ, ok := avail[f.ID]; ok && occ.Known() {
			f.Occupancy = occ
		}
		out[i] = f
	}
	return out
}
