package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// CatalogStatus describes the facility catalog currently served.
type CatalogStatus struct {
	Version    uint64 `json:"version"`
	Facilities int    `json:"facilities"`
	StoredRows *int   `json:"stored_rows,omitempty"`
}

// CatalogStatusHandler returns the loaded catalog version and size, plus the
// persisted row count when a database is configured.
func CatalogStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cat := deps.Catalog.Snapshot()
		status := CatalogStatus{Version: cat.Version, Facilities: cat.Len()}

		if deps.Carparks != nil {
			n, err := deps.Carparks.Count(c.UserContext())
			if err != nil {
				LoggerFromCtx(c.UserContext()).Warn("count stored carparks", "error", err)
			} else {
				status.StoredRows = &n
			}
		}

		return c.JSON(status)
	}
}

// ListCarparksHandler returns the catalog, paginated.
func ListCarparksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pg := parsePagination(c)
		items, total := deps.Catalog.Page(pg.Offset, pg.Limit)
		pg.Total = total

		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: items, Pagination: pg})
	}
}

// GetCarparkHandler returns one catalog entry.
func GetCarparkHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("id"))
		if id == "" {
			return errBadRequest(c, "id is required")
		}
		loc, err := deps.Catalog.Lookup(id)
		if err != nil {
			return errFromUsecase(c, err)
		}
		return c.JSON(loc)
	}
}

// LotTypesHandler returns the vehicle lot codes and their labels.
func LotTypesHandler() fiber.Handler {
	types := domain.LotTypes()
	return func(c *fiber.Ctx) error {
		return c.JSON(types)
	}
}

// GeocodeSearchHandler runs a free-text place search.
func GeocodeSearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if deps.Search == nil {
			return errInternal(c, "search not available")
		}

		places, err := deps.Search.Search(c.UserContext(), q)
		if err != nil {
			if isUsecaseError(err) {
				return errFromUsecase(c, err)
			}
			LoggerFromCtx(c.UserContext()).Warn("geocode search failed", "error", err)
			return errUpstream(c, "place search is unavailable")
		}
		return c.JSON(fiber.Map{"query": q, "results": places})
	}
}
