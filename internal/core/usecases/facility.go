package usecases

import (
	"fmt"
	"math"
	"strconv"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/pkg/geospatial"
)

// walkingMinutesPerKm approximates a 5 km/h walking pace.
const walkingMinutesPerKm = 12

// FacilityParts carries every input BuildFacility may draw on. A nil record
// means the corresponding source returned nothing for the facility.
type FacilityParts struct {
	Location domain.FacilityLocation
	Origin   *domain.GeoPoint
	Lots     *domain.LotsRecord
	Rate     *domain.RateRecord
	Info     *domain.InfoRecord
	LotType  domain.LotType
}

// BuildFacility assembles a NearbyFacility with these fallbacks:
//   - descriptive fields come from Info, then Rate
//   - a missing address becomes domain.AddressUnavailable, other text domain.FieldUnavailable
//   - numeric descriptive fields and the fee stay nil when absent
//   - occupancy comes from the lot picked for LotType, else unknown
//   - distance is 0 without an origin
func BuildFacility(p FacilityParts) domain.NearbyFacility {
	f := domain.NearbyFacility{
		ID:        p.Location.ID,
		Latitude:  p.Location.Latitude,
		Longitude: p.Location.Longitude,
		Occupancy: OccupancyFromLots(p.Lots, p.LotType),
	}

	if p.Origin != nil {
		f.DistanceKm = geospatial.DistanceKm(p.Origin.Lat, p.Origin.Lon, p.Location.Latitude, p.Location.Longitude)
	}
	f.WalkingMinutes = WalkingMinutes(f.DistanceKm)
	f.DirectionsURL = DirectionsURL(p.Location.Point(), p.Origin)

	var info domain.InfoRecord
	if p.Info != nil {
		info = *p.Info
	}
	var rate domain.RateRecord
	if p.Rate != nil {
		rate = *p.Rate
	}

	f.Address = firstString(domain.AddressUnavailable, info.Address, rate.Address)
	f.Agency = firstString(domain.FieldUnavailable, info.Agency, rate.Agency)
	f.Type = firstString(domain.FieldUnavailable, info.Type, rate.Type)
	f.ParkingSystemType = firstString(domain.FieldUnavailable, info.ParkingSystemType, rate.ParkingSystemType)
	f.ShortTermParkingPeriod = firstString(domain.FieldUnavailable, info.ShortTermParkingPeriod, rate.ShortTermParkingPeriod)
	f.FreeParkingPeriod = firstString(domain.FieldUnavailable, info.FreeParkingPeriod, rate.FreeParkingPeriod)
	f.NightParkingFlag = firstInt(info.NightParkingFlag, rate.NightParkingFlag)
	f.BasementFlag = firstInt(info.BasementFlag, rate.BasementFlag)
	f.DeckCount = firstInt(info.DeckCount, rate.DeckCount)
	f.GantryHeight = firstFloat(info.GantryHeight, rate.GantryHeight)

	if len(rate.Rates) > 0 && rate.Rates[0].EstimatedFee != nil {
		fee := *rate.Rates[0].EstimatedFee
		f.EstimatedFee = &fee
	}

	return f
}

// MinimalFacility is the record shown when live data could not be fetched:
// location and distance only, every remote field unavailable.
func MinimalFacility(loc domain.FacilityLocation, origin *domain.GeoPoint) domain.NearbyFacility {
	f := BuildFacility(FacilityParts{Location: loc, Origin: origin})
	f.Partial = true
	return f
}

// WalkingMinutes estimates walking time for a distance.
func WalkingMinutes(distanceKm float64) int {
	if distanceKm <= 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return 0
	}
	return int(math.Round(distanceKm * walkingMinutesPerKm))
}

// DirectionsURL builds a Google Maps directions link, with origin when known.
func DirectionsURL(dest domain.GeoPoint, origin *domain.GeoPoint) string {
	u := fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%s,%s", formatCoord(dest.Lat), formatCoord(dest.Lon))
	if origin != nil {
		u += fmt.Sprintf("&origin=%s,%s", formatCoord(origin.Lat), formatCoord(origin.Lon))
	}
	return u
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstString(fallback string, vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return fallback
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return copyInt(v)
		}
	}
	return nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			f := *v
			return &f
		}
	}
	return nil
}
