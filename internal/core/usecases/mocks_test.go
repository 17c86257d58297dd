package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

// --- Mock CarparkQueryClient ---

type mockQueryClient struct {
	mu        sync.Mutex
	lotsCalls []ports.CarparkQuery
	rateCalls []ports.CarparkQuery
	infoCalls []ports.CarparkQuery

	lotsFn  func(ctx context.Context, q ports.CarparkQuery) ([]domain.LotsRecord, error)
	ratesFn func(ctx context.Context, q ports.CarparkQuery) ([]domain.RateRecord, error)
	infoFn  func(ctx context.Context, q ports.CarparkQuery) ([]domain.InfoRecord, error)
}

func (m *mockQueryClient) QueryLots(ctx context.Context, q ports.CarparkQuery) ([]domain.LotsRecord, error) {
	m.mu.Lock()
	m.lotsCalls = append(m.lotsCalls, q)
	m.mu.Unlock()
	if m.lotsFn != nil {
		return m.lotsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockQueryClient) QueryRates(ctx context.Context, q ports.CarparkQuery) ([]domain.RateRecord, error) {
	m.mu.Lock()
	m.rateCalls = append(m.rateCalls, q)
	m.mu.Unlock()
	if m.ratesFn != nil {
		return m.ratesFn(ctx, q)
	}
	return nil, nil
}

func (m *mockQueryClient) QueryInfo(ctx context.Context, q ports.CarparkQuery) ([]domain.InfoRecord, error) {
	m.mu.Lock()
	m.infoCalls = append(m.infoCalls, q)
	m.mu.Unlock()
	if m.infoFn != nil {
		return m.infoFn(ctx, q)
	}
	return nil, nil
}

func (m *mockQueryClient) calls() (lots, rates, info int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lotsCalls), len(m.rateCalls), len(m.infoCalls)
}

// --- Mock CatalogSource ---

type mockCatalogSource struct {
	loadFn func(ctx context.Context) ([]domain.FacilityLocation, error)
}

func (m *mockCatalogSource) Load(ctx context.Context) ([]domain.FacilityLocation, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx)
	}
	return nil, nil
}

// --- Mock FavoriteRepository ---

type mockFavoriteRepo struct {
	mu   sync.Mutex
	data map[string][]string
	err  error
}

func (m *mockFavoriteRepo) List(ctx context.Context, email string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.data[email]...), nil
}

func (m *mockFavoriteRepo) Save(ctx context.Context, email string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = make(map[string][]string)
	}
	m.data[email] = append([]string(nil), ids...)
	return nil
}

// --- Fixtures ---

// anchor is the reference point used across tests.
var anchor = domain.GeoPoint{Lat: 1.3000, Lon: 103.8000}

// Facility X is ~0.5 km north of anchor, Y ~1.5 km north.
var (
	facilityX = domain.FacilityLocation{ID: "X", Latitude: 1.3000 + 0.5/111.195, Longitude: 103.8000}
	facilityY = domain.FacilityLocation{ID: "Y", Latitude: 1.3000 + 1.5/111.195, Longitude: 103.8000}
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func testWindow() domain.TimeWindow {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return domain.TimeWindow{Start: start, End: start.Add(2 * time.Hour)}
}

func catalogOf(items ...domain.FacilityLocation) *usecases.Catalog {
	return usecases.NewCatalog(1, items)
}

func catalogServiceOf(items ...domain.FacilityLocation) *usecases.CatalogService {
	svc := usecases.NewCatalogService(&mockCatalogSource{}, nil)
	svc.Replace(items)
	return svc
}

func lotsFor(id string, available, total int) domain.LotsRecord {
	return domain.LotsRecord{ID: id, Lots: []domain.LotCount{{Type: "C", Available: intPtr(available), Total: intPtr(total)}}}
}
