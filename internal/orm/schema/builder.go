package schema

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/conduit-lang/trident/internal/orm/record"
	"go.uber.org/multierr"
)

// Builder declares a model type fluently
//
//	sample, err := schema.Model("Sample").
//		Fields("name", "description", "sample_type_id").
//		HasOne("sample_type", "SampleType", "").
//		HasMany("items", "Item", "").
//		Build()
type Builder struct {
	t      *ModelType
	errors []error
}

// Model starts the declaration of a model type
func Model(name string) *Builder {
	b := &Builder{t: NewModelType(name)}
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("model type name must not be empty"))
	}
	return b
}

// Fields declares plain fields
func (b *Builder) Fields(names ...string) *Builder {
	for _, name := range names {
		b.field(name, 0)
	}
	return b
}

// Ignore declares fields that are dropped on load and dump
func (b *Builder) Ignore(names ...string) *Builder {
	for _, name := range names {
		b.field(name, FieldIgnored)
	}
	return b
}

// LoadOnly declares fields that are loaded but never dumped
func (b *Builder) LoadOnly(names ...string) *Builder {
	for _, name := range names {
		b.field(name, FieldLoadOnly)
	}
	return b
}

// DumpOnly declares fields that are dumped but never loaded
func (b *Builder) DumpOnly(names ...string) *Builder {
	for _, name := range names {
		b.field(name, FieldDumpOnly)
	}
	return b
}

// LoadAll keeps unrecognized raw keys as plain attributes
func (b *Builder) LoadAll() *Builder {
	b.t.LoadAll = true
	return b
}

// Init sets a hook run on every record constructed through the registry
func (b *Builder) Init(fn func(*record.Record)) *Builder {
	b.t.Init = fn
	return b
}

// Method registers a bound method
func (b *Builder) Method(name string, m Method) *Builder {
	if m == nil {
		b.errors = append(b.errors, fmt.Errorf("%s: method %s is nil", b.t.Name, name))
		return b
	}
	b.t.AddMethod(name, m)
	return b
}

// One declares a single-valued relationship with an explicit callback
func (b *Builder) One(name, target string, cb Callback, params ...Param) *Builder {
	return b.relationship(&Relationship{
		Name:        name,
		Target:      target,
		Cardinality: One,
		Kind:        RelationshipCustom,
		Callback:    cb,
		Params:      params,
	})
}

// Many declares a sequence-valued relationship with an explicit callback
func (b *Builder) Many(name, target string, cb Callback, params ...Param) *Builder {
	return b.relationship(&Relationship{
		Name:        name,
		Target:      target,
		Cardinality: Many,
		Kind:        RelationshipCustom,
		Callback:    cb,
		Params:      params,
	})
}

// HasOne declares a relationship found by the id held in the ref attribute.
// ref defaults to name + "_id".
func (b *Builder) HasOne(name, target, ref string) *Builder {
	if ref == "" {
		ref = name + "_id"
	}
	return b.relationship(&Relationship{
		Name:        name,
		Target:      target,
		Cardinality: One,
		Kind:        RelationshipHasOne,
		Callback:    BoundMethod(MethodFind),
		Params:      []Param{Attr(ref)},
	})
}

// HasMany declares a relationship to every target record whose ref attribute
// holds this record's id. ref defaults to snake_case(owner) + "_id".
func (b *Builder) HasMany(name, target, ref string) *Builder {
	if ref == "" {
		ref = toSnakeCase(b.t.Name) + "_id"
	}
	return b.relationship(&Relationship{
		Name:        name,
		Target:      target,
		Cardinality: Many,
		Kind:        RelationshipHasMany,
		Callback:    BoundMethod(MethodWhere),
		Params:      []Param{Query(map[string]string{ref: record.IDField})},
	})
}

// HasManyGeneric declares a relationship to target records that point back
// through a (parent_class, parent_id) pair
func (b *Builder) HasManyGeneric(name, target string) *Builder {
	owner := b.t.Name
	return b.relationship(&Relationship{
		Name:        name,
		Target:      target,
		Cardinality: Many,
		Kind:        RelationshipHasManyGeneric,
		Callback:    BoundMethod(MethodWhere),
		Params: []Param{FromRecord(func(r *record.Record) (interface{}, error) {
			return map[string]interface{}{
				"parent_class": owner,
				"parent_id":    r.ID(),
			}, nil
		})},
	})
}

// HasManyThrough declares a relationship resolved through an association model:
// every through record whose ownerRef holds this record's id contributes the
// target record named by its targetRef.
func (b *Builder) HasManyThrough(name, target, through, ownerRef, targetRef string) *Builder {
	methodName := "through_" + name
	b.t.AddMethod(methodName, throughMethod(through, ownerRef, targetRef))
	return b.relationship(&Relationship{
		Name:        name,
		Target:      target,
		Cardinality: Many,
		Kind:        RelationshipHasManyThrough,
		Callback:    BoundMethod(methodName),
		Params:      []Param{Attr(record.IDField)},
	})
}

// Build returns the model type or the accumulated declaration errors
func (b *Builder) Build() (*ModelType, error) {
	if err := multierr.Combine(b.errors...); err != nil {
		return nil, fmt.Errorf("invalid model type %s: %w", b.t.Name, err)
	}
	return b.t, nil
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *ModelType {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func (b *Builder) field(name string, flags FieldFlag) {
	if name == "" {
		b.errors = append(b.errors, fmt.Errorf("%s: field name must not be empty", b.t.Name))
		return
	}
	if b.t.IsRelationship(name) {
		b.errors = append(b.errors, fmt.Errorf("%s: %s is already declared as a relationship", b.t.Name, name))
		return
	}
	if existing, ok := b.t.Field(name); ok {
		flags |= existing.Flags
	}
	b.t.AddField(&Field{Name: name, Flags: flags})
}

func (b *Builder) relationship(rel *Relationship) *Builder {
	switch {
	case rel.Name == "":
		b.errors = append(b.errors, fmt.Errorf("%s: relationship name must not be empty", b.t.Name))
	case rel.Target == "":
		b.errors = append(b.errors, fmt.Errorf("%s: relationship %s has no target", b.t.Name, rel.Name))
	case b.t.IsField(rel.Name):
		b.errors = append(b.errors, fmt.Errorf("%s: %s is already declared as a field", b.t.Name, rel.Name))
	case rel.Callback.IsBound() && rel.Callback.MethodName() == "":
		b.errors = append(b.errors, fmt.Errorf("%s: relationship %s has no callback", b.t.Name, rel.Name))
	default:
		b.t.AddRelationship(rel)
	}
	return b
}

func throughMethod(through, ownerRef, targetRef string) Method {
	return func(ctx context.Context, s Session, rec *record.Record, target string, params ...interface{}) (interface{}, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("%w: through expects 1 param, got %d", ErrBadParams, len(params))
		}
		if isNil(params[0]) {
			return []interface{}{}, nil
		}
		if s == nil {
			return nil, ErrNoSession
		}

		assocs, err := s.Where(ctx, through, map[string]interface{}{ownerRef: params[0]})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", through, err)
		}

		var ids []interface{}
		for _, assoc := range Sequence(assocs) {
			if id := RawAttr(assoc, targetRef); id != nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return []interface{}{}, nil
		}
		return s.Where(ctx, target, map[string]interface{}{record.IDField: ids})
	}
}

// Sequence normalizes a session result into a slice
func Sequence(v interface{}) []interface{} {
	switch seq := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return seq
	case []map[string]interface{}:
		out := make([]interface{}, len(seq))
		for i, m := range seq {
			out[i] = m
		}
		return out
	case []*record.Record:
		out := make([]interface{}, len(seq))
		for i, r := range seq {
			out[i] = r
		}
		return out
	default:
		return []interface{}{v}
	}
}

// RawAttr reads an attribute from a raw value or a record
func RawAttr(v interface{}, name string) interface{} {
	switch r := v.(type) {
	case map[string]interface{}:
		return r[name]
	case *record.Record:
		val, _ := r.Get(name)
		return val
	}
	return nil
}

// toSnakeCase converts a model name such as "SampleType" to "sample_type"
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
