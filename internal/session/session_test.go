package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/conduit-lang/trident/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	raw := map[string]interface{}{
		"id":           int64(3),
		"parent_class": "Operation",
		"parent_id":    float64(7),
		"role":         nil,
	}

	cases := []struct {
		name  string
		query map[string]interface{}
		want  bool
	}{
		{"empty query", nil, true},
		{"number across types", map[string]interface{}{"id": 3}, true},
		{"string", map[string]interface{}{"parent_class": "Operation"}, true},
		{"mismatch", map[string]interface{}{"parent_class": "Plan"}, false},
		{"any of", map[string]interface{}{"parent_id": []interface{}{1, 7}}, true},
		{"typed any of", map[string]interface{}{"id": []int{1, 2, 3}}, true},
		{"any of miss", map[string]interface{}{"parent_id": []interface{}{1, 2}}, false},
		{"empty any of", map[string]interface{}{"parent_id": []interface{}{}}, false},
		{"nil matches nil", map[string]interface{}{"role": nil}, true},
		{"nil matches absent", map[string]interface{}{"missing": nil}, true},
		{"number is not string", map[string]interface{}{"id": "3"}, false},
		{"all entries", map[string]interface{}{"id": 3, "parent_class": "Plan"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(raw, tc.query))
		})
	}
}

func TestIDKey(t *testing.T) {
	assert.Equal(t, idKey(int64(12)), idKey(12))
	assert.Equal(t, idKey(12), idKey(float64(12)))
	assert.Equal(t, "12", idKey(12))
	assert.Equal(t, "abc", idKey("abc"))
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory with fixtures", func(t *testing.T) {
		path := writeFixture(t, "lab.yml", `
Sample:
  - {id: 1, name: primer}
  - {id: 2, name: plasmid}
`)
		store, err := Open(ctx, Config{Driver: DriverMemory, Fixtures: []string{path}})
		require.NoError(t, err)
		defer store.Close()

		got, err := store.Find(ctx, "Sample", 2)
		require.NoError(t, err)
		assert.Equal(t, "plasmid", got.(map[string]interface{})["name"])
	})

	t.Run("default driver", func(t *testing.T) {
		store, err := Open(ctx, Config{})
		require.NoError(t, err)
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := Open(ctx, Config{Driver: DriverSQLite, DSN: ":memory:"})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &SQLStore{}, store)
	})

	t.Run("cached", func(t *testing.T) {
		store, err := Open(ctx, Config{}, WithCache(cache.NewMemoryCache(cache.DefaultConfig())))
		require.NoError(t, err)
		cached, ok := store.(*CachedStore)
		require.True(t, ok)
		assert.IsType(t, &MemoryStore{}, cached.Unwrap())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: "mongo"})
		assert.True(t, errors.Is(err, ErrUnknownDriver))
	})

	t.Run("missing dsn", func(t *testing.T) {
		_, err := Open(ctx, Config{Driver: DriverPostgres})
		assert.Error(t, err)
	})

	t.Run("bad fixtures", func(t *testing.T) {
		_, err := Open(ctx, Config{Fixtures: []string{filepath.Join(t.TempDir(), "absent.yml")}})
		assert.Error(t, err)
	})
}
