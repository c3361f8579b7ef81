// Package dumper serializes record graphs into plain nested values, expanding
// the relationships named by an include tree.
package dumper

import (
	"context"
	"fmt"
	"strconv"

	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/orm/resolver"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"go.uber.org/zap"
)

// Dumper turns records into plain values
type Dumper struct {
	resolver *resolver.Resolver
	logger   *zap.Logger
}

// Option configures a Dumper
type Option func(*Dumper)

// WithLogger sets the dumper logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dumper) {
		d.logger = logger
	}
}

// New creates a dumper that reads relationships through r
func New(r *resolver.Resolver, opts ...Option) *Dumper {
	d := &Dumper{
		resolver: r,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// visitKey identifies a record dumped with a given set of options
type visitKey struct {
	rid record.RID
	sig string
}

// dumpState tracks the records on the active dump path
type dumpState struct {
	active map[visitKey]bool
}

// Dump serializes rec. Plain fields that are dumpable and pass Only/Exclude
// are emitted; relationships named in opts.Include are read through the
// resolver (fulfilling them if needed) and dumped recursively. A nil rec
// dumps to nil.
func (d *Dumper) Dump(ctx context.Context, rec *record.Record, opts Options) (map[string]interface{}, error) {
	if rec == nil {
		return nil, nil
	}
	st := &dumpState{active: make(map[visitKey]bool)}
	return d.dump(ctx, rec, opts, st)
}

// DumpMany serializes a sequence of records with the same options. nil
// elements are kept as nil.
func (d *Dumper) DumpMany(ctx context.Context, recs []*record.Record, opts Options) ([]interface{}, error) {
	st := &dumpState{active: make(map[visitKey]bool)}
	return d.dumpSequence(ctx, recs, opts, st)
}

func (d *Dumper) dump(ctx context.Context, rec *record.Record, opts Options, st *dumpState) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := d.resolver.Registry().Get(rec.Model())
	if err != nil {
		return nil, err
	}

	key := visitKey{rid: rec.RID(), sig: opts.signature()}
	if st.active[key] {
		d.logger.Debug("cycle detected, emitting scalar fields only",
			zap.String("model", t.Name),
			zap.Stringer("rid", rec.RID()))
		return scalarFields(t, rec, opts), nil
	}
	st.active[key] = true
	defer delete(st.active, key)

	out := make(map[string]interface{})
	for name, value := range rec.Attributes() {
		if !dumpable(t, name) || !opts.allows(name) {
			continue
		}
		v, err := d.dumpAttribute(ctx, value, st)
		if err != nil {
			return nil, record.WithPath(name, err)
		}
		out[name] = v
	}

	for _, e := range opts.Include.Entries() {
		if !t.IsRelationship(e.Name) {
			return nil, &resolver.UnknownAttributeError{
				Model:         t.Name,
				Name:          e.Name,
				Relationships: t.RelationshipNames(),
			}
		}

		value, err := d.resolver.Get(ctx, rec, e.Name)
		if err != nil {
			return nil, record.WithPath(e.Name, err)
		}

		dumped, err := d.dumpRelated(ctx, value, e.Options, st)
		if err != nil {
			return nil, record.WithPath(e.Name, err)
		}
		out[e.Name] = dumped
	}

	return out, nil
}

// dumpRelated dumps the value of a resolved relationship
func (d *Dumper) dumpRelated(ctx context.Context, value interface{}, opts Options, st *dumpState) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *record.Record:
		if v == nil {
			return nil, nil
		}
		return d.dump(ctx, v, opts, st)
	case []*record.Record:
		return d.dumpSequence(ctx, v, opts, st)
	default:
		return nil, fmt.Errorf("%w: relationship holds %T", ErrUnexpectedValue, value)
	}
}

func (d *Dumper) dumpSequence(ctx context.Context, recs []*record.Record, opts Options, st *dumpState) ([]interface{}, error) {
	out := make([]interface{}, len(recs))
	for i, rec := range recs {
		if rec == nil {
			continue
		}
		m, err := d.dump(ctx, rec, opts, st)
		if err != nil {
			return nil, record.WithPath(strconv.Itoa(i), err)
		}
		out[i] = m
	}
	return out, nil
}

// dumpAttribute copies a plain attribute value. Records held directly in
// attributes are dumped with default options.
func (d *Dumper) dumpAttribute(ctx context.Context, value interface{}, st *dumpState) (interface{}, error) {
	switch v := value.(type) {
	case *record.Record:
		if v == nil {
			return nil, nil
		}
		return d.dump(ctx, v, Options{}, st)
	case []*record.Record:
		return d.dumpSequence(ctx, v, Options{}, st)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			dumped, err := d.dumpAttribute(ctx, item, st)
			if err != nil {
				return nil, record.WithPath(strconv.Itoa(i), err)
			}
			out[i] = dumped
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			dumped, err := d.dumpAttribute(ctx, item, st)
			if err != nil {
				return nil, record.WithPath(k, err)
			}
			out[k] = dumped
		}
		return out, nil
	default:
		return value, nil
	}
}

// scalarFields is the placeholder emitted when a record is reached again on
// the active path: its dumpable fields that do not hold records
func scalarFields(t *schema.ModelType, rec *record.Record, opts Options) map[string]interface{} {
	out := make(map[string]interface{})
	for name, value := range rec.Attributes() {
		if !dumpable(t, name) || !opts.allows(name) || holdsRecords(value) {
			continue
		}
		out[name] = value
	}
	return out
}

func dumpable(t *schema.ModelType, name string) bool {
	if f, ok := t.Field(name); ok {
		return f.Dumpable()
	}
	return t.LoadAll
}

func holdsRecords(value interface{}) bool {
	switch v := value.(type) {
	case *record.Record, []*record.Record:
		return true
	case []interface{}:
		for _, item := range v {
			if holdsRecords(item) {
				return true
			}
		}
	case map[string]interface{}:
		for _, item := range v {
			if holdsRecords(item) {
				return true
			}
		}
	}
	return false
}
