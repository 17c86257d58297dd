// Package csvcatalog reads and writes the facility catalog as CSV with the
// header CarParkID,latitude,longitude.
package csvcatalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/pkg/metrics"
)

// Header is the first row of every catalog file.
var Header = []string{"CarParkID", "latitude", "longitude"}

// Parse reads catalog rows from r. The first row is treated as the header.
// Blank rows, rows with unparsable or out-of-range coordinates and repeated
// ids are skipped and logged; they never fail the whole load.
func Parse(r io.Reader, logger *slog.Logger) ([]domain.FacilityLocation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []domain.FacilityLocation{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	seen := make(map[string]struct{})
	out := make([]domain.FacilityLocation, 0, 2048)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				reject(logger, perr.Line, "malformed row", err)
				continue
			}
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(rec) < 3 {
			reject(logger, line, "too few columns", nil)
			continue
		}

		id := strings.TrimSpace(rec[0])
		if id == "" {
			reject(logger, line, "empty id", nil)
			continue
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if errLat != nil || errLon != nil {
			reject(logger, line, "unparsable coordinates", errors.Join(errLat, errLon))
			continue
		}
		p := domain.GeoPoint{Lat: lat, Lon: lon}
		if !p.Valid() {
			reject(logger, line, "coordinates out of range", nil)
			continue
		}
		if _, dup := seen[id]; dup {
			reject(logger, line, "duplicate id", nil)
			continue
		}
		seen[id] = struct{}{}
		out = append(out, domain.FacilityLocation{ID: id, Latitude: lat, Longitude: lon})
	}
	return out, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func reject(logger *slog.Logger, line int, reason string, err error) {
	metrics.CatalogRejectedRows.Inc()
	if err != nil {
		logger.Warn("catalog row skipped", "line", line, "reason", reason, "error", err)
		return
	}
	logger.Warn("catalog row skipped", "line", line, "reason", reason)
}

// Write renders items as catalog CSV sorted by id.
func Write(w io.Writer, items []domain.FacilityLocation) error {
	sorted := make([]domain.FacilityLocation, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, f := range sorted {
		if err := cw.Write([]string{
			f.ID,
			strconv.FormatFloat(f.Latitude, 'f', 10, 64),
			strconv.FormatFloat(f.Longitude, 'f', 10, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileSource loads the catalog from a local file. It implements ports.CatalogSource.
type FileSource struct {
	Path   string
	Logger *slog.Logger
}

func (s FileSource) Load(ctx context.Context) ([]domain.FacilityLocation, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f, s.Logger)
}
