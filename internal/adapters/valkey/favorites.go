package valkey

import (
	"context"
	"encoding/json"
	"fmt"
)

const favoritesPrefix = "favorites:"

// FavoriteRepo implements ports.FavoriteRepository on top of the cache
// client. Each user's list is one JSON array stored without expiry.
type FavoriteRepo struct {
	cache *Cache
}

// NewFavoriteRepo creates a new FavoriteRepo.
func NewFavoriteRepo(cache *Cache) *FavoriteRepo {
	return &FavoriteRepo{cache: cache}
}

func (r *FavoriteRepo) List(ctx context.Context, email string) ([]string, error) {
	data, err := r.cache.Get(ctx, favoritesPrefix+email)
	if IsMiss(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode favorites: %w", err)
	}
	return ids, nil
}

func (r *FavoriteRepo) Save(ctx context.Context, email string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, favoritesPrefix+email, data, 0)
}
