package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSession serves fixed raw records and counts calls
type countingSession struct {
	mu      sync.Mutex
	records map[string][]map[string]interface{}
	calls   int32
	err     error
}

func (s *countingSession) Find(_ context.Context, model string, id interface{}) (interface{}, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range s.records[model] {
		if raw["id"] == id {
			return raw, nil
		}
	}
	return nil, nil
}

func (s *countingSession) Where(_ context.Context, model string, query map[string]interface{}) (interface{}, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []interface{}
	for _, raw := range s.records[model] {
		match := true
		for k, v := range query {
			if raw[k] != v {
				match = false
			}
		}
		if match {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (s *countingSession) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

func setupTestRegistry() *schema.Registry {
	registry := schema.NewRegistry()
	registry.Define(schema.Model("Sample").
		Fields("name", "sample_type_id").
		HasOne("sample_type", "SampleType", "").
		HasMany("items", "Item", "").
		One("broken", "SampleType", schema.BoundMethod("does_not_exist")).
		MustBuild())
	registry.Define(schema.Model("SampleType").
		Fields("name").
		HasMany("samples", "Sample", "").
		MustBuild())
	registry.Define(schema.Model("Item").
		Fields("location", "sample_id").
		HasOne("sample", "Sample", "").
		MustBuild())
	return registry
}

func newSession() *countingSession {
	return &countingSession{records: map[string][]map[string]interface{}{
		"SampleType": {
			{"id": 1, "name": "Primer"},
			{"id": 2, "name": "Plasmid"},
		},
		"Item": {
			{"id": 10, "location": "M20.1.1.1", "sample_id": 5},
			{"id": 11, "location": "M20.1.1.2", "sample_id": 5},
			{"id": 12, "location": "M80.1.1.1", "sample_id": 6},
		},
	}}
}

func TestGetPlainField(t *testing.T) {
	session := newSession()
	r := New(setupTestRegistry(), session)
	rec := record.New("Sample", map[string]interface{}{"name": "pMOD8"})

	v, err := r.Get(context.Background(), rec, "name")
	require.NoError(t, err)
	assert.Equal(t, "pMOD8", v)

	v, err = r.Get(context.Background(), rec, "sample_type_id")
	require.NoError(t, err)
	assert.Nil(t, v, "declared but unset field reads as nil")
	assert.Equal(t, 0, session.count())
}

func TestMemoization(t *testing.T) {
	session := newSession()
	r := New(setupTestRegistry(), session)
	rec := record.New("Sample", map[string]interface{}{"id": 5, "sample_type_id": 1})
	ctx := context.Background()

	first, err := r.One(ctx, rec, "sample_type")
	require.NoError(t, err)
	require.NotNil(t, first)
	name, _ := first.Get("name")
	assert.Equal(t, "Primer", name)

	for i := 0; i < 5; i++ {
		again, err := r.One(ctx, rec, "sample_type")
		require.NoError(t, err)
		assert.Same(t, first, again)
	}
	assert.Equal(t, 1, session.count(), "callback must run exactly once")

	items, err := r.Many(ctx, rec, "items")
	require.NoError(t, err)
	require.Len(t, items, 2)
	loc, _ := items[1].Get("location")
	assert.Equal(t, "M20.1.1.2", loc)
	assert.Equal(t, 2, session.count())
}

func TestResolvedNilIsMemoized(t *testing.T) {
	session := newSession()
	r := New(setupTestRegistry(), session)
	rec := record.New("Sample", map[string]interface{}{"sample_type_id": 99})

	v, err := r.Get(context.Background(), rec, "sample_type")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, rec.IsResolved("sample_type"))

	_, err = r.Get(context.Background(), rec, "sample_type")
	require.NoError(t, err)
	assert.Equal(t, 1, session.count())
}

func TestInvalidation(t *testing.T) {
	session := newSession()
	r := New(setupTestRegistry(), session)
	rec := record.New("Sample", map[string]interface{}{"sample_type_id": 1})
	ctx := context.Background()

	first, err := r.One(ctx, rec, "sample_type")
	require.NoError(t, err)

	// Simulate a remote mutation
	rec.Set("sample_type_id", 2)
	require.NoError(t, r.Invalidate(rec, "sample_type"))

	second, err := r.One(ctx, rec, "sample_type")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	name, _ := second.Get("name")
	assert.Equal(t, "Plasmid", name)
	assert.Equal(t, 2, session.count())

	refreshed, err := r.Refresh(ctx, rec, "sample_type")
	require.NoError(t, err)
	assert.NotSame(t, second, refreshed)
	assert.Equal(t, 3, session.count())

	r.InvalidateAll(rec)
	assert.False(t, rec.IsResolved("sample_type"))
}

func TestInvalidateUnknown(t *testing.T) {
	r := New(setupTestRegistry(), newSession())
	rec := record.New("Sample", nil)

	err := r.Invalidate(rec, "name")
	var unknown *UnknownAttributeError
	assert.True(t, errors.As(err, &unknown), "plain fields cannot be invalidated")
}

func TestUnknownAttribute(t *testing.T) {
	r := New(setupTestRegistry(), newSession())
	rec := record.New("Sample", nil)

	_, err := r.Get(context.Background(), rec, "colour")
	var unknown *UnknownAttributeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Sample", unknown.Model)
	assert.Equal(t, "colour", unknown.Name)
	assert.Equal(t, []string{"broken", "items", "sample_type"}, unknown.Relationships)
	assert.Contains(t, err.Error(), "sample_type")
}

func TestLoadAllAdHocAttribute(t *testing.T) {
	registry := schema.NewRegistry()
	registry.Define(schema.Model("Job").LoadAll().MustBuild())
	r := New(registry, nil)
	rec := record.New("Job", map[string]interface{}{"pc": 3})

	v, err := r.Get(context.Background(), rec, "pc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	require.NoError(t, r.Set(rec, "state", "done"))
	v, err = r.Get(context.Background(), rec, "state")
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	_, err = r.Get(context.Background(), rec, "never_set")
	assert.Error(t, err)
}

func TestCallbackNotFound(t *testing.T) {
	r := New(setupTestRegistry(), newSession())
	rec := record.New("Sample", nil)

	for _, opts := range [][]GetOption{nil, {SoftFail()}} {
		_, err := r.Get(context.Background(), rec, "broken", opts...)
		var notFound *CallbackNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, "does_not_exist", notFound.Method)
		assert.False(t, rec.IsResolved("broken"))
	}
}

func TestResolutionError(t *testing.T) {
	boom := errors.New("connection reset")
	session := newSession()
	session.err = boom
	r := New(setupTestRegistry(), session)
	ctx := context.Background()

	t.Run("propagates by default", func(t *testing.T) {
		rec := record.New("Sample", map[string]interface{}{"sample_type_id": 1})
		_, err := r.Get(ctx, rec, "sample_type")

		var resErr *RelationshipResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, "Sample", resErr.Model)
		assert.Equal(t, "sample_type", resErr.Relationship)
		assert.Equal(t, "SampleType", resErr.Target)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, rec.IsResolved("sample_type"))
	})

	t.Run("soft fail resolves nil", func(t *testing.T) {
		rec := record.New("Sample", map[string]interface{}{"sample_type_id": 1})
		v, err := r.Get(ctx, rec, "sample_type", SoftFail())
		require.NoError(t, err)
		assert.Nil(t, v)

		cached, ok := rec.Cached("sample_type")
		assert.True(t, ok)
		assert.Nil(t, cached)
	})

	t.Run("params failure", func(t *testing.T) {
		registry := schema.NewRegistry()
		registry.Define(schema.Model("A").
			One("b", "A", schema.BoundMethod(schema.MethodFind),
				schema.FromRecord(func(*record.Record) (interface{}, error) { return nil, boom })).
			MustBuild())
		_, err := New(registry, nil).Get(ctx, record.New("A", nil), "b")
		var resErr *RelationshipResolutionError
		assert.True(t, errors.As(err, &resErr))
	})

	t.Run("unloadable result", func(t *testing.T) {
		registry := schema.NewRegistry()
		registry.Define(schema.Model("A").
			One("b", "A", schema.FreeFunction(func(context.Context, string, ...interface{}) (interface{}, error) {
				return 42, nil
			})).
			MustBuild())
		_, err := New(registry, nil).Get(ctx, record.New("A", nil), "b")
		var resErr *RelationshipResolutionError
		assert.True(t, errors.As(err, &resErr))
	})
}

func TestFreeFunctionParamsEvaluatedLazily(t *testing.T) {
	var gotTarget string
	var gotParams []interface{}

	registry := schema.NewRegistry()
	registry.Define(schema.Model("Operation").
		Fields("status").
		Many("siblings", "Operation",
			schema.FreeFunction(func(_ context.Context, target string, params ...interface{}) (interface{}, error) {
				gotTarget = target
				gotParams = params
				return []interface{}{map[string]interface{}{"status": "pending"}}, nil
			}),
			schema.Value("literal"),
			schema.Attr("status")).
		MustBuild())

	r := New(registry, nil)
	rec := record.New("Operation", map[string]interface{}{"status": "waiting"})

	// Changing the attribute before the first read changes the parameter
	rec.Set("status", "ready")
	siblings, err := r.Many(context.Background(), rec, "siblings")
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, "Operation", gotTarget)
	assert.Equal(t, []interface{}{"literal", "ready"}, gotParams)
}

func TestCallbackReturnsInstance(t *testing.T) {
	existing := record.New("SampleType", map[string]interface{}{"id": 1})
	registry := schema.NewRegistry()
	registry.Define(schema.Model("SampleType").MustBuild())
	registry.Define(schema.Model("Sample").
		One("sample_type", "SampleType", schema.FreeFunction(func(context.Context, string, ...interface{}) (interface{}, error) {
			return existing, nil
		})).
		MustBuild())

	got, err := New(registry, nil).One(context.Background(), record.New("Sample", nil), "sample_type")
	require.NoError(t, err)
	assert.Same(t, existing, got)
}

func TestSetWriteThrough(t *testing.T) {
	session := newSession()
	r := New(setupTestRegistry(), session)
	rec := record.New("Sample", map[string]interface{}{"sample_type_id": 1})
	ctx := context.Background()

	st := record.New("SampleType", map[string]interface{}{"name": "Fragment"})
	require.NoError(t, r.Set(rec, "sample_type", st))

	got, err := r.One(ctx, rec, "sample_type")
	require.NoError(t, err)
	assert.Same(t, st, got)
	assert.Equal(t, 0, session.count(), "assignment short-circuits resolution")

	// Raw values are loaded as records of the target type
	require.NoError(t, r.Set(rec, "items", []interface{}{map[string]interface{}{"location": "bench"}}))
	items, err := r.Many(ctx, rec, "items")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Item", items[0].Model())

	require.NoError(t, r.Set(rec, "sample_type", nil))
	got, err = r.One(ctx, rec, "sample_type")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.Set(rec, "name", "renamed"))
	name, _ := rec.Get("name")
	assert.Equal(t, "renamed", name)

	var unknown *UnknownAttributeError
	assert.True(t, errors.As(r.Set(rec, "colour", "red"), &unknown))
}

func TestTypedAccessorMismatch(t *testing.T) {
	r := New(setupTestRegistry(), newSession())
	rec := record.New("Sample", nil)
	rec.Resolve("sample_type", "not a record")
	rec.Resolve("items", "not records")

	_, err := r.One(context.Background(), rec, "sample_type")
	assert.True(t, errors.Is(err, ErrNotARecord))
	_, err = r.Many(context.Background(), rec, "items")
	assert.True(t, errors.Is(err, ErrNotARecord))
}

func TestUnknownModel(t *testing.T) {
	r := New(schema.NewRegistry(), nil)
	_, err := r.Get(context.Background(), record.New("Ghost", nil), "name")
	var notFound *schema.TypeNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGetNilRecord(t *testing.T) {
	r := New(setupTestRegistry(), newSession())
	_, err := r.Get(context.Background(), nil, "name")
	assert.ErrorIs(t, err, ErrNilRecord)
	assert.ErrorIs(t, r.Set(nil, "name", "x"), ErrNilRecord)
	assert.ErrorIs(t, r.Invalidate(nil, "items"), ErrNilRecord)
}

func TestPrefetch(t *testing.T) {
	session := newSession()
	r := New(setupTestRegistry(), session)
	ctx := context.Background()

	a := record.New("Sample", map[string]interface{}{"id": 5})
	b := record.New("Sample", map[string]interface{}{"id": 6})
	c := record.New("Sample", map[string]interface{}{"id": 7})
	c.Resolve("items", []*record.Record{})

	require.NoError(t, r.Prefetch(ctx, []*record.Record{a, b, a, nil, c}, "items", 4))
	assert.Equal(t, 2, session.count(), "duplicates and resolved records are skipped")

	items, err := r.Many(ctx, b, "items")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 2, session.count())

	session.err = errors.New("down")
	d := record.New("Sample", map[string]interface{}{"id": 8})
	assert.Error(t, r.Prefetch(ctx, []*record.Record{d}, "items", 0))
	assert.NoError(t, r.Prefetch(ctx, []*record.Record{record.New("Sample", map[string]interface{}{"id": 9})}, "items", 2, SoftFail()))
}
