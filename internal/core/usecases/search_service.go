package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

var ErrEmptyQuery = errors.New("search query must not be empty")

// SearchService geocodes free-text place queries with a read-through cache.
type SearchService struct {
	geocoder ports.Geocoder
	cache    ports.CacheService
	ttl      int
	limit    int
}

// NewSearchService creates a new SearchService. cache may be nil.
func NewSearchService(geocoder ports.Geocoder, cache ports.CacheService, ttlSeconds, limit int) *SearchService {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	if limit <= 0 {
		limit = 10
	}
	return &SearchService{geocoder: geocoder, cache: cache, ttl: ttlSeconds, limit: limit}
}

// Search returns ranked places for query.
func (s *SearchService) Search(ctx context.Context, query string) ([]domain.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	cacheKey := "geocode:" + strings.ToLower(query)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var places []domain.Place
			if err := json.Unmarshal(data, &places); err == nil {
				metrics.CacheHits.WithLabelValues("geocode").Inc()
				return places, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	places, err := s.geocoder.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	if len(places) > s.limit {
		places = places[:s.limit]
	}
	if places == nil {
		places = []domain.Place{}
	}

	if s.cache != nil {
		if data, err := json.Marshal(places); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}

	return places, nil
}
