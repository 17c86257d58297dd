package usecases_test

import (
	"math"
	"testing"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

func TestOccupancyOf(t *testing.T) {
	tests := []struct {
		name      string
		available *int
		total     *int
		ratio     *float64
		level     domain.CongestionLevel
	}{
		{"nil available", nil, intPtr(10), nil, domain.CongestionUnknown},
		{"nil total", intPtr(3), nil, nil, domain.CongestionUnknown},
		{"zero total", intPtr(0), intPtr(0), nil, domain.CongestionUnknown},
		{"three of ten is medium", intPtr(3), intPtr(10), floatPtr(0.3), domain.CongestionMedium},
		{"six of ten is low", intPtr(6), intPtr(10), floatPtr(0.6), domain.CongestionLow},
		{"just under medium", intPtr(29), intPtr(100), floatPtr(0.29), domain.CongestionHigh},
		{"full", intPtr(0), intPtr(50), floatPtr(0), domain.CongestionHigh},
		{"all free", intPtr(50), intPtr(50), floatPtr(1), domain.CongestionLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := usecases.OccupancyOf(tt.available, tt.total)
			if occ.CongestionLevel != tt.level {
				t.Errorf("level = %s, want %s", occ.CongestionLevel, tt.level)
			}
			switch {
			case tt.ratio == nil && occ.OccupancyRatio != nil:
				t.Errorf("ratio = %f, want nil", *occ.OccupancyRatio)
			case tt.ratio != nil && occ.OccupancyRatio == nil:
				t.Errorf("ratio = nil, want %f", *tt.ratio)
			case tt.ratio != nil && math.Abs(*occ.OccupancyRatio-*tt.ratio) > 1e-9:
				t.Errorf("ratio = %f, want %f", *occ.OccupancyRatio, *tt.ratio)
			}
		})
	}
}

func TestOccupancyOf_CopiesInputs(t *testing.T) {
	avail := 4
	occ := usecases.OccupancyOf(&avail, intPtr(8))
	avail = 7
	if *occ.AvailableLots != 4 {
		t.Errorf("occupancy must not alias its input, got %d", *occ.AvailableLots)
	}
}

func TestCongestionFor_Thresholds(t *testing.T) {
	for ratio := 0.0; ratio <= 1.0; ratio += 0.01 {
		r := ratio
		got := usecases.CongestionFor(&r)
		var want domain.CongestionLevel
		switch {
		case r >= 0.6:
			want = domain.CongestionLow
		case r >= 0.3:
			want = domain.CongestionMedium
		default:
			want = domain.CongestionHigh
		}
		if got != want {
			t.Fatalf("CongestionFor(%f) = %s, want %s", r, got, want)
		}
	}
}

func TestPickLot(t *testing.T) {
	lots := []domain.LotCount{
		{Type: "Y", Available: intPtr(5), Total: intPtr(20)},
		{Type: "C", Available: intPtr(1), Total: intPtr(10)},
	}

	if got := usecases.PickLot(lots, domain.LotTypeCar); got.Type != "C" {
		t.Errorf("expected matching type C, got %s", got.Type)
	}
	if got := usecases.PickLot(lots, domain.LotTypeHeavyVehicle); got.Type != "Y" {
		t.Errorf("expected fallback to first lot, got %s", got.Type)
	}
	if got := usecases.PickLot(nil, domain.LotTypeCar); got != nil {
		t.Errorf("expected nil for no lots, got %+v", got)
	}
}

func TestOccupancyFromLots(t *testing.T) {
	rec := lotsFor("X", 3, 10)
	occ := usecases.OccupancyFromLots(&rec, domain.LotTypeCar)
	if occ.CongestionLevel != domain.CongestionMedium {
		t.Errorf("expected medium, got %s", occ.CongestionLevel)
	}
	if occ.LotType == nil || *occ.LotType != "C" {
		t.Errorf("expected lot type C, got %v", occ.LotType)
	}

	if got := usecases.OccupancyFromLots(nil, domain.LotTypeCar); got.CongestionLevel != domain.CongestionUnknown {
		t.Errorf("expected unknown for missing record, got %s", got.CongestionLevel)
	}
	empty := domain.LotsRecord{ID: "X"}
	if got := usecases.OccupancyFromLots(&empty, domain.LotTypeCar); got.Known() {
		t.Error("expected unknown for record without lots")
	}
}
