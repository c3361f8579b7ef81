package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conduit-lang/trident/internal/cache"
	"github.com/conduit-lang/trident/internal/payload"
	"go.uber.org/zap"
)

// CachedStore answers find and where from a cache, falling back to the
// wrapped store on a miss. Put bumps the generation counter of the model,
// which orphans every cached response for it.
type CachedStore struct {
	store  Store
	cache  cache.Cache
	logger *zap.Logger
}

// NewCachedStore wraps store with c
func NewCachedStore(store Store, c cache.Cache, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		store:  store,
		cache:  c,
		logger: logger,
	}
}

// Find returns the cached find response or loads it from the wrapped store
func (s *CachedStore) Find(ctx context.Context, model string, id interface{}) (interface{}, error) {
	gen, err := s.generation(ctx, model)
	if err != nil {
		return s.store.Find(ctx, model, id)
	}
	return s.fetch(ctx, cache.FindKey(model, gen, idKey(id)), func() (interface{}, error) {
		return s.store.Find(ctx, model, id)
	})
}

// Where returns the cached where response or loads it from the wrapped store
func (s *CachedStore) Where(ctx context.Context, model string, query map[string]interface{}) (interface{}, error) {
	gen, err := s.generation(ctx, model)
	if err != nil {
		return s.store.Where(ctx, model, query)
	}
	key, err := cache.WhereKey(model, gen, query)
	if err != nil {
		return s.store.Where(ctx, model, query)
	}
	return s.fetch(ctx, key, func() (interface{}, error) {
		return s.store.Where(ctx, model, query)
	})
}

// Put writes through to the wrapped store and invalidates cached responses for model
func (s *CachedStore) Put(ctx context.Context, model string, raw map[string]interface{}) (interface{}, error) {
	id, err := s.store.Put(ctx, model, raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Incr(ctx, cache.GenerationKey(model)); err != nil {
		return nil, fmt.Errorf("invalidate cached %s: %w", model, err)
	}
	return id, nil
}

// Close closes the wrapped store. The cache is left open.
func (s *CachedStore) Close() error {
	return s.store.Close()
}

// Unwrap returns the wrapped store
func (s *CachedStore) Unwrap() Store {
	return s.store
}

// fetch returns the cached response under key, or calls load and caches its
// result. Cache failures degrade to calling load.
func (s *CachedStore) fetch(ctx context.Context, key string, load func() (interface{}, error)) (interface{}, error) {
	data, err := s.cache.Get(ctx, key)
	if err == nil {
		v, err := payload.DecodeJSON(data)
		if err == nil {
			s.logger.Debug("cache hit", zap.String("key", key))
			return v, nil
		}
		s.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
	} else if !cache.IsMiss(err) {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err := load()
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("response not cacheable", zap.String("key", key), zap.Error(err))
		return v, nil
	}
	if err := s.cache.Set(ctx, key, encoded, 0); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// generation reads the current generation counter of model
func (s *CachedStore) generation(ctx context.Context, model string) (int64, error) {
	data, err := s.cache.Get(ctx, cache.GenerationKey(model))
	if cache.IsMiss(err) {
		return 0, nil
	}
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("model", model), zap.Error(err))
		return 0, err
	}
	var gen int64
	if _, err := fmt.Sscan(string(data), &gen); err != nil {
		return 0, err
	}
	return gen, nil
}
