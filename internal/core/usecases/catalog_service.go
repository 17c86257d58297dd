package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/geospatial"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

var ErrUnknownFacility = errors.New("facility not in catalog")

// Catalog is an immutable snapshot of the facility table. It is shared by
// reference and never mutated after construction.
type Catalog struct {
	Version uint64
	items   []domain.FacilityLocation
	byID    map[string]int
}

// NewCatalog builds a snapshot. Later duplicates of an id are dropped.
func NewCatalog(version uint64, items []domain.FacilityLocation) *Catalog {
	c := &Catalog{
		Version: version,
		items:   make([]domain.FacilityLocation, 0, len(items)),
		byID:    make(map[string]int, len(items)),
	}
	for _, f := range items {
		if _, dup := c.byID[f.ID]; dup || f.ID == "" {
			continue
		}
		c.byID[f.ID] = len(c.items)
		c.items = append(c.items, f)
	}
	return c
}

// Len returns the number of facilities.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items returns the facilities in load order. Callers must not modify the slice.
func (c *Catalog) Items() []domain.FacilityLocation {
	if c == nil {
		return nil
	}
	return c.items
}

// Lookup finds a facility by id.
func (c *Catalog) Lookup(id string) (domain.FacilityLocation, bool) {
	if c == nil {
		return domain.FacilityLocation{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return domain.FacilityLocation{}, false
	}
	return c.items[i], true
}

// IDs returns every facility id in load order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, c.Len())
	for _, f := range c.Items() {
		ids = append(ids, f.ID)
	}
	return ids
}

// Candidate is a facility with its distance from the anchor.
type Candidate struct {
	Location   domain.FacilityLocation
	DistanceKm float64
}

// Candidates returns every facility with a finite distance <= radiusKm from
// anchor, nearest first (ties by id).
func (c *Catalog) Candidates(anchor domain.GeoPoint, radiusKm float64) []Candidate {
	if c.Len() == 0 || radiusKm < 0 {
		return nil
	}
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(anchor.Lat, anchor.Lon, radiusKm)
	box := domain.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}

	var out []Candidate
	for _, f := range c.items {
		if !box.Contains(f.Point()) {
			continue
		}
		d := geospatial.DistanceKm(anchor.Lat, anchor.Lon, f.Latitude, f.Longitude)
		if math.IsNaN(d) || math.IsInf(d, 0) || d > radiusKm {
			continue
		}
		out = append(out, Candidate{Location: f, DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Location.ID < out[j].Location.ID
	})
	return out
}

// CatalogService owns the current catalog snapshot and notifies subscribers
// when it is replaced.
type CatalogService struct {
	source  ports.CatalogSource
	logger  *slog.Logger
	current atomic.Pointer[Catalog]

	mu        sync.Mutex
	version   uint64
	listeners map[int]func(*Catalog)
	nextID    int
}

// NewCatalogService creates a service that starts with an empty catalog.
func NewCatalogService(source ports.CatalogSource, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &CatalogService{source: source, logger: logger, listeners: make(map[int]func(*Catalog))}
	s.current.Store(NewCatalog(0, nil))
	return s
}

// Load reads the source and swaps in the new snapshot. On failure the
// previous snapshot stays in place and the error is returned for reporting.
func (s *CatalogService) Load(ctx context.Context) error {
	items, err := s.source.Load(ctx)
	if err != nil {
		s.logger.Error("catalog load failed", "error", err)
		return fmt.Errorf("load catalog: %w", err)
	}
	s.Replace(items)
	return nil
}

// Replace installs items as the new snapshot and notifies subscribers.
func (s *CatalogService) Replace(items []domain.FacilityLocation) *Catalog {
	s.mu.Lock()
	s.version++
	cat := NewCatalog(s.version, items)
	s.current.Store(cat)
	listeners := make([]func(*Catalog), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	metrics.CatalogRows.Set(float64(cat.Len()))
	s.logger.Info("catalog loaded", "rows", cat.Len(), "version", cat.Version)

	for _, fn := range listeners {
		fn(cat)
	}
	return cat
}

// Snapshot returns the current catalog.
func (s *CatalogService) Snapshot() *Catalog {
	return s.current.Load()
}

// Lookup finds a facility in the current catalog.
func (s *CatalogService) Lookup(id string) (domain.FacilityLocation, error) {
	f, ok := s.Snapshot().Lookup(id)
	if !ok {
		return domain.FacilityLocation{}, ErrUnknownFacility
	}
	return f, nil
}

// Page returns a window of the catalog plus the total count.
func (s *CatalogService) Page(offset, limit int) ([]domain.FacilityLocation, int) {
	items := s.Snapshot().Items()
	total := len(items)
	if offset >= total {
		return []domain.FacilityLocation{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total
}

// Subscribe registers fn to be called after every catalog replacement.
func (s *CatalogService) Subscribe(fn func(*Catalog)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
