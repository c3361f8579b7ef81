// Package session provides the stores that answer relationship callbacks:
// an in-memory store, a SQL snapshot store, an HTTP client for the record
// API and a caching decorator.
package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/conduit-lang/trident/internal/cache"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"go.uber.org/zap"
)

// Store is a schema.Session that can also receive records
type Store interface {
	schema.Session

	// Put inserts or replaces a raw record and returns its id. A record
	// without an id is assigned one.
	Put(ctx context.Context, model string, raw map[string]interface{}) (interface{}, error)

	Close() error
}

var (
	// ErrUnknownDriver is returned by Open for unsupported drivers
	ErrUnknownDriver = errors.New("unknown session driver")

	// ErrInvalidRecord is returned when a raw record cannot be stored
	ErrInvalidRecord = errors.New("invalid record")
)

// Supported drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverHTTP     = "http"
)

// Config selects and configures a store
type Config struct {
	// Driver is one of memory, sqlite3, postgres, pgx or http
	Driver string
	// DSN is the database source name, or the base URL for http
	DSN string
	// Fixtures are YAML or JSON files loaded into the store on open
	Fixtures []string
}

type options struct {
	logger *zap.Logger
	cache  cache.Cache
}

// Option configures Open
type Option func(*options)

// WithLogger sets the logger of the opened store
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCache wraps the opened store in a caching decorator
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// Open creates the store described by cfg and loads its fixtures
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverMemory, "":
		store = NewMemoryStore(o.logger)
	case DriverSQLite, DriverPostgres, DriverPgx:
		store, err = OpenSQL(ctx, cfg.Driver, cfg.DSN, o.logger)
	case DriverHTTP:
		store, err = NewHTTPStore(cfg.DSN, o.logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	for _, path := range cfg.Fixtures {
		n, err := LoadFixtureFile(ctx, store, path)
		if err != nil {
			store.Close()
			return nil, err
		}
		o.logger.Info("loaded fixtures", zap.String("path", path), zap.Int("records", n))
	}

	if o.cache != nil {
		store = NewCachedStore(store, o.cache, o.logger)
	}
	return store, nil
}

// Match reports whether raw satisfies every entry of query. A slice in the
// query matches any of its elements. Numbers compare by value.
func Match(raw map[string]interface{}, query map[string]interface{}) bool {
	for key, want := range query {
		got := raw[key]
		if options, ok := anyOf(want); ok {
			found := false
			for _, option := range options {
				if equal(got, option) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !equal(got, want) {
			return false
		}
	}
	return true
}

// anyOf expands a query value that lists alternatives
func anyOf(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []interface{}:
		return val, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func equal(a, b interface{}) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// idKey is the canonical string form of a persisted id
func idKey(id interface{}) string {
	if f, ok := number(id); ok {
		return fmt.Sprint(f)
	}
	return fmt.Sprint(id)
}
