package usecases

import "github.com/samirrijal/carparkfinder/internal/core/domain"

// Ratio thresholds for congestion tiers. Applied identically to every view.
const (
	lowCongestionRatio    = 0.6
	mediumCongestionRatio = 0.3
)

// OccupancyOf derives ratio and congestion from an available/total pair.
// The ratio is nil when either input is nil or total is zero.
func OccupancyOf(available, total *int) domain.Occupancy {
	occ := domain.Occupancy{
		AvailableLots: copyInt(available),
		TotalLots:     copyInt(total),
	}
	if available != nil && total != nil && *total != 0 {
		r := float64(*available) / float64(*total)
		occ.OccupancyRatio = &r
	}
	occ.CongestionLevel = CongestionFor(occ.OccupancyRatio)
	return occ
}

// CongestionFor classifies a ratio: >=0.6 low, >=0.3 medium, else high.
func CongestionFor(ratio *float64) domain.CongestionLevel {
	switch {
	case ratio == nil:
		return domain.CongestionUnknown
	case *ratio >= lowCongestionRatio:
		return domain.CongestionLow
	case *ratio >= mediumCongestionRatio:
		return domain.CongestionMedium
	default:
		return domain.CongestionHigh
	}
}

// PickLot prefers the entry matching lotType and falls back to the first one.
func PickLot(lots []domain.LotCount, lotType domain.LotType) *domain.LotCount {
	if len(lots) == 0 {
		return nil
	}
	if lotType != "" {
		for i := range lots {
			if lots[i].Type == string(lotType) {
				return &lots[i]
			}
		}
	}
	return &lots[0]
}

// OccupancyFromLots decorates the lot picked from rec. A nil record or one
// with no lots yields the unknown occupancy.
func OccupancyFromLots(rec *domain.LotsRecord, lotType domain.LotType) domain.Occupancy {
	if rec == nil {
		return domain.UnknownOccupancy()
	}
	lot := PickLot(rec.Lots, lotType)
	if lot == nil {
		return domain.UnknownOccupancy()
	}
	occ := OccupancyOf(lot.Available, lot.Total)
	if lot.Type != "" {
		t := lot.Type
		occ.LotType = &t
	}
	return occ
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
