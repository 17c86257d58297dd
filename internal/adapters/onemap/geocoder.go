// Package onemap geocodes free-text place names with the OneMap elastic search API.
package onemap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
	"github.com/samirrijal/carparkfinder/internal/pkg/telemetry"
)

const (
	DefaultBaseURL = "https://www.onemap.gov.sg/api/common/elastic/search"
	endpointLabel  = "onemap.search"
)

// Geocoder implements ports.Geocoder.
type Geocoder struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// New creates a Geocoder. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, timeout time.Duration) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Geocoder{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tracer:  telemetry.Tracer("onemap"),
	}
}

type searchResponse struct {
	Found   int `json:"found"`
	Results []struct {
		Address   string `json:"ADDRESS"`
		SearchVal string `json:"SEARCHVAL"`
		Latitude  string `json:"LATITUDE"`
		Longitude string `json:"LONGITUDE"`
	} `json:"results"`
}

// Search returns matching places in the order OneMap ranks them. Results
// without usable coordinates are dropped.
func (g *Geocoder) Search(ctx context.Context, query string) (places []domain.Place, err error) {
	ctx, span := g.tracer.Start(ctx, telemetry.SpanGeocode, trace.WithAttributes(attribute.Int("query.length", len(query))))
	start := time.Now()
	defer func() {
		metrics.ObserveRemote(endpointLabel, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	params := url.Values{}
	params.Set("searchVal", query)
	params.Set("returnGeom", "Y")
	params.Set("getAddrDetails", "Y")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("onemap search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("onemap search: status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode onemap response: %w", err)
	}

	places = make([]domain.Place, 0, len(body.Results))
	for _, r := range body.Results {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
		if errLat != nil || errLon != nil {
			continue
		}
		name := r.Address
		if name == "" || name == "NIL" {
			name = r.SearchVal
		}
		places = append(places, domain.Place{DisplayName: name, Lat: lat, Lon: lon})
	}
	return places, nil
}
