// Package memory holds in-process fallbacks used when Valkey is disabled.
package memory

import (
	"context"
	"sync"
)

// FavoriteRepo keeps favorites in a map. Contents are lost on restart.
type FavoriteRepo struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewFavoriteRepo() *FavoriteRepo {
	return &FavoriteRepo{data: make(map[string][]string)}
}

func (r *FavoriteRepo) List(_ context.Context, email string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.data[email]...), nil
}

func (r *FavoriteRepo) Save(_ context.Context, email string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[email] = append([]string(nil), ids...)
	return nil
}
