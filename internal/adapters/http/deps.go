package http

import (
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/carparkfinder/internal/adapters/objectstore"
	"github.com/samirrijal/carparkfinder/internal/adapters/postgres"
	"github.com/samirrijal/carparkfinder/internal/adapters/valkey"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Catalog   *usecases.CatalogService
	Sessions  *usecases.SessionManager
	Search    *usecases.SearchService
	Favorites *usecases.FavoriteService
	Auth      *usecases.AuthService
	NATS      *nats.Conn
	DB        *postgres.DB
	Carparks  *postgres.CarparkRepo
	Cache     *valkey.Cache
	Objects   *objectstore.CatalogStore

	// Location is the zone window times without an offset are read in.
	Location *time.Location
	// AllowOrigins lists the CORS origins; empty allows none cross-origin.
	AllowOrigins []string
	// SearchDebounce delays WebSocket search requests until typing settles.
	SearchDebounce time.Duration
	// OpenAPIPath points at the served API document; empty means api/openapi.yaml.
	OpenAPIPath string
}

func (d *Dependencies) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}
