package ports

import (
	"context"

	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// CarparkQuery scopes one remote lots/rates/info call.
type CarparkQuery struct {
	Window  domain.TimeWindow
	IDs     []string
	LotType domain.LotType
	// SignIDs attaches the id-list key to a lots request. Only the nearby
	// search sends it.
	SignIDs bool
}

// CarparkQueryClient talks to the remote occupancy and pricing service.
type CarparkQueryClient interface {
	QueryLots(ctx context.Context, q CarparkQuery) ([]domain.LotsRecord, error)
	QueryRates(ctx context.Context, q CarparkQuery) ([]domain.RateRecord, error)
	QueryInfo(ctx context.Context, q CarparkQuery) ([]domain.InfoRecord, error)
}

// Geocoder performs free-text place search.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]domain.Place, error)
}

// IdentityProvider resolves an OAuth access token to the user's email.
type IdentityProvider interface {
	Email(ctx context.Context, accessToken string) (string, error)
}

// SessionExchanger trades an identity token for a backend session token.
type SessionExchanger interface {
	Exchange(ctx context.Context, accessToken, email string) (string, error)
}

// EventPublisher publishes session state changes to a message broker.
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, sessionID, kind string, payload any) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
