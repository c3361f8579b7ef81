package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryCache is a process-local cache with lazy expiry
type MemoryCache struct {
	mu     sync.Mutex
	items  map[string]item
	config Config
	now    func() time.Time
}

type item struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache(config Config) *MemoryCache {
	return &MemoryCache{
		items:  make(map[string]item),
		config: config,
		now:    time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.lookup(m.config.Prefix + key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	it := item{value: stored}
	if ttl > 0 {
		it.expiration = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.items[m.config.Prefix+key] = it
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	full := m.config.Prefix + key
	var n int64
	if it, ok := m.lookup(full); ok {
		parsed, err := strconv.ParseInt(string(it.value), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	}
	n++
	m.items[full] = item{value: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}

func (m *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, m.config.Prefix+k)
	}
	return nil
}

func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if strings.HasPrefix(k, m.config.Prefix) {
			delete(m.items, k)
		}
	}
	return nil
}

// Len returns the number of live entries
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.items {
		if _, ok := m.lookup(k); ok {
			n++
		}
	}
	return n
}

func (m *MemoryCache) Close() error {
	return nil
}

// lookup returns a live entry, dropping it when expired. Callers hold mu.
func (m *MemoryCache) lookup(full string) (item, bool) {
	it, ok := m.items[full]
	if !ok {
		return item{}, false
	}
	if !it.expiration.IsZero() && m.now().After(it.expiration) {
		delete(m.items, full)
		return item{}, false
	}
	return it, true
}
