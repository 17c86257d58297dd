// Package datamall pages through the LTA DataMall car park availability feed
// to collect facility coordinates.
package datamall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

const DefaultBaseURL = "https://datamall2.mytransport.sg/ltaodataservice/CarParkAvailabilityv2"

// Client fetches one page of the feed at a time.
type Client struct {
	baseURL    string
	accountKey string
	http       *http.Client
}

func New(baseURL, accountKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{baseURL: baseURL, accountKey: accountKey, http: &http.Client{Timeout: timeout}}
}

type pageResponse struct {
	Value []struct {
		CarParkID string `json:"CarParkID"`
		Location  string `json:"Location"`
	} `json:"value"`
}

// Page is one decoded feed page.
type Page struct {
	// Rows is the raw row count; zero means the feed is exhausted.
	Rows      int                       `json:"rows"`
	Locations []domain.FacilityLocation `json:"locations"`
}

// FetchPage returns the rows at offset skip. Rows without an id or with an
// unparsable location are left out of Locations but still counted in Rows.
func (c *Client) FetchPage(ctx context.Context, skip int) (page Page, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote("datamall.availability", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+url.Values{"$skip": {strconv.Itoa(skip)}}.Encode(), nil)
	if err != nil {
		return page, err
	}
	req.Header.Set("AccountKey", c.accountKey)
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return page, fmt.Errorf("datamall skip=%d: %w", skip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, fmt.Errorf("datamall skip=%d: status %d", skip, resp.StatusCode)
	}

	var body pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return page, fmt.Errorf("decode datamall page: %w", err)
	}

	page.Rows = len(body.Value)
	page.Locations = make([]domain.FacilityLocation, 0, len(body.Value))
	for _, row := range body.Value {
		if row.CarParkID == "" {
			continue
		}
		lat, lon, ok := ParseLocation(row.Location)
		if !ok {
			continue
		}
		page.Locations = append(page.Locations, domain.FacilityLocation{ID: row.CarParkID, Latitude: lat, Longitude: lon})
	}
	return page, nil
}

// ParseLocation splits a "lat lon" pair.
func ParseLocation(s string) (lat, lon float64, ok bool) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if !(domain.GeoPoint{Lat: lat, Lon: lon}).Valid() {
		return 0, 0, false
	}
	return lat, lon, true
}
