// Package resolver implements relationship fulfillment for records: reading a
// declared relationship that is not yet resolved invokes its callback once,
// memoizes the loaded result on the record, and returns it.
package resolver

import (
	"context"
	"fmt"

	"github.com/conduit-lang/trident/internal/orm/loader"
	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resolver reads attributes and relationships of records
type Resolver struct {
	registry *schema.Registry
	loader   *loader.Loader
	session  schema.Session
	logger   *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithLoader sets the loader used to turn callback results into records
func WithLoader(l *loader.Loader) Option {
	return func(r *Resolver) {
		r.loader = l
	}
}

// New creates a resolver. session is handed to bound methods and may be nil
// when every relationship uses free functions or is loaded eagerly.
func New(registry *schema.Registry, session schema.Session, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		session:  session,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = loader.New(registry, loader.WithLogger(r.logger))
	}
	return r
}

// Registry returns the registry the resolver reads model types from
func (r *Resolver) Registry() *schema.Registry {
	return r.registry
}

// Loader returns the loader used for callback results
func (r *Resolver) Loader() *loader.Loader {
	return r.loader
}

// Session returns the session handed to bound methods
func (r *Resolver) Session() schema.Session {
	return r.session
}

// GetOption configures a single read
type GetOption func(*getOptions)

type getOptions struct {
	soft bool
}

// SoftFail makes a failing callback resolve the relationship to nil instead
// of returning a RelationshipResolutionError. Unknown attributes and missing
// callback methods still fail.
func SoftFail() GetOption {
	return func(o *getOptions) {
		o.soft = true
	}
}

// Get reads name on rec: a plain field returns its stored value, a resolved
// relationship returns its cached value, and an unresolved relationship is
// fulfilled through its callback and memoized.
func (r *Resolver) Get(ctx context.Context, rec *record.Record, name string, opts ...GetOption) (interface{}, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: cannot read %s", ErrNilRecord, name)
	}

	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	t, err := r.registry.Get(rec.Model())
	if err != nil {
		return nil, err
	}

	if t.IsField(name) {
		v, _ := rec.Get(name)
		return v, nil
	}

	rel, ok := t.Relationship(name)
	if !ok {
		if t.LoadAll {
			if v, ok := rec.Get(name); ok {
				return v, nil
			}
		}
		return nil, unknownAttribute(t, name)
	}

	if v, ok := rec.Cached(name); ok {
		return v, nil
	}

	return r.fulfill(ctx, t, rec, rel, o)
}

// One reads a single-valued relationship
func (r *Resolver) One(ctx context.Context, rec *record.Record, name string, opts ...GetOption) (*record.Record, error) {
	v, err := r.Get(ctx, rec, name, opts...)
	if err != nil || v == nil {
		return nil, err
	}
	related, ok := v.(*record.Record)
	if !ok {
		return nil, ErrNotARecord
	}
	return related, nil
}

// Many reads a sequence-valued relationship
func (r *Resolver) Many(ctx context.Context, rec *record.Record, name string, opts ...GetOption) ([]*record.Record, error) {
	v, err := r.Get(ctx, rec, name, opts...)
	if err != nil || v == nil {
		return nil, err
	}
	related, ok := v.([]*record.Record)
	if !ok {
		return nil, ErrNotARecord
	}
	return related, nil
}

// Set writes name on rec. Assigning a relationship resolves it with value and
// short-circuits its callback until invalidated; raw values are loaded as
// records of the relationship's target type.
func (r *Resolver) Set(rec *record.Record, name string, value interface{}) error {
	if rec == nil {
		return fmt.Errorf("%w: cannot set %s", ErrNilRecord, name)
	}
	t, err := r.registry.Get(rec.Model())
	if err != nil {
		return err
	}

	if t.IsField(name) {
		rec.Set(name, value)
		return nil
	}

	if rel, ok := t.Relationship(name); ok {
		loaded, err := r.loader.LoadValue(rel.Target, rel.Cardinality, value)
		if err != nil {
			return record.WithPath(name, err)
		}
		rec.Resolve(name, loaded)
		return nil
	}

	if t.LoadAll {
		rec.Set(name, value)
		return nil
	}
	return unknownAttribute(t, name)
}

// Invalidate resets a relationship so the next read invokes its callback again
func (r *Resolver) Invalidate(rec *record.Record, name string) error {
	if rec == nil {
		return fmt.Errorf("%w: cannot invalidate %s", ErrNilRecord, name)
	}
	t, err := r.registry.Get(rec.Model())
	if err != nil {
		return err
	}
	if !t.IsRelationship(name) {
		return unknownAttribute(t, name)
	}
	rec.Invalidate(name)
	return nil
}

// InvalidateAll resets every relationship of rec
func (r *Resolver) InvalidateAll(rec *record.Record) {
	rec.InvalidateAll()
}

// Refresh invalidates a relationship and reads it again
func (r *Resolver) Refresh(ctx context.Context, rec *record.Record, name string, opts ...GetOption) (interface{}, error) {
	if err := r.Invalidate(rec, name); err != nil {
		return nil, err
	}
	return r.Get(ctx, rec, name, opts...)
}

// Prefetch resolves one relationship across many records concurrently, with at
// most workers callbacks in flight. Records are deduplicated by RID so no
// cache entry is fulfilled twice by the same call.
func (r *Resolver) Prefetch(ctx context.Context, recs []*record.Record, name string, workers int, opts ...GetOption) error {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	seen := make(map[record.RID]bool, len(recs))
	for _, rec := range recs {
		if rec == nil || seen[rec.RID()] {
			continue
		}
		seen[rec.RID()] = true
		if rec.IsResolved(name) {
			continue
		}

		rec := rec
		g.Go(func() error {
			_, err := r.Get(gctx, rec, name, opts...)
			return err
		})
	}
	return g.Wait()
}

func (r *Resolver) fulfill(ctx context.Context, t *schema.ModelType, rec *record.Record, rel *schema.Relationship, o getOptions) (interface{}, error) {
	fail := func(err error) (interface{}, error) {
		if o.soft {
			rec.Resolve(rel.Name, nil)
			return nil, nil
		}
		return nil, &RelationshipResolutionError{
			Model:        t.Name,
			Relationship: rel.Name,
			Target:       rel.Target,
			Err:          err,
		}
	}

	params, err := schema.EvaluateParams(rel.Params, rec)
	if err != nil {
		return fail(err)
	}

	callback, err := r.callback(t, rec, rel)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolving relationship",
		zap.String("model", t.Name),
		zap.String("relationship", rel.Name),
		zap.String("target", rel.Target),
		zap.Stringer("rid", rec.RID()),
		zap.String("callback", rel.Callback.String()))

	raw, err := callback(ctx, rel.Target, params...)
	if err != nil {
		return fail(err)
	}

	value, err := r.loader.LoadValue(rel.Target, rel.Cardinality, raw)
	if err != nil {
		return fail(err)
	}

	rec.Resolve(rel.Name, value)
	return value, nil
}

// callback resolves the relationship's callback into a plain function
func (r *Resolver) callback(t *schema.ModelType, rec *record.Record, rel *schema.Relationship) (schema.Func, error) {
	if !rel.Callback.IsBound() {
		return rel.Callback.Func(), nil
	}

	method, ok := t.Method(rel.Callback.MethodName())
	if !ok {
		return nil, &CallbackNotFoundError{
			Model:        t.Name,
			Relationship: rel.Name,
			Method:       rel.Callback.MethodName(),
		}
	}

	session := r.session
	return func(ctx context.Context, target string, params ...interface{}) (interface{}, error) {
		return method(ctx, session, rec, target, params...)
	}, nil
}

func unknownAttribute(t *schema.ModelType, name string) error {
	return &UnknownAttributeError{
		Model:         t.Name,
		Name:          name,
		Relationships: t.RelationshipNames(),
	}
}
