// Package schema provides the declarative model-type definitions of the record graph:
// plain fields with visibility flags, lazily resolved relationships, and the
// registries that map model-type names to their definitions.
package schema

import (
	"sort"

	"github.com/conduit-lang/trident/internal/orm/record"
)

// FieldFlag controls the serialization visibility of a plain field
type FieldFlag uint8

const (
	// FieldIgnored fields are never loaded or dumped
	FieldIgnored FieldFlag = 1 << iota
	// FieldLoadOnly fields are loaded but never dumped
	FieldLoadOnly
	// FieldDumpOnly fields are dumped but never loaded
	FieldDumpOnly
)

// Field represents a plain attribute of a model type
type Field struct {
	Name  string
	Flags FieldFlag
}

// Ignored reports whether the field is dropped on load and dump
func (f *Field) Ignored() bool {
	return f.Flags&FieldIgnored != 0
}

// Loadable reports whether the Loader copies the field from raw data
func (f *Field) Loadable() bool {
	return f.Flags&(FieldIgnored|FieldDumpOnly) == 0
}

// Dumpable reports whether the Dumper emits the field
func (f *Field) Dumpable() bool {
	return f.Flags&(FieldIgnored|FieldLoadOnly) == 0
}

// Cardinality is the number of records a relationship resolves to
type Cardinality int

const (
	// One resolves to a single record or nil
	One Cardinality = iota
	// Many resolves to an ordered sequence of records
	Many
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return "unknown"
	}
}

// RelationKind records which builder helper declared a relationship
type RelationKind int

const (
	RelationshipCustom RelationKind = iota
	RelationshipHasOne
	RelationshipHasMany
	RelationshipHasManyThrough
	RelationshipHasManyGeneric
)

// String returns the string representation of the relationship kind
func (r RelationKind) String() string {
	switch r {
	case RelationshipCustom:
		return "custom"
	case RelationshipHasOne:
		return "has_one"
	case RelationshipHasMany:
		return "has_many"
	case RelationshipHasManyThrough:
		return "has_many_through"
	case RelationshipHasManyGeneric:
		return "has_many_generic"
	default:
		return "unknown"
	}
}

// Relationship describes a named, lazily resolved link to records of the Target type.
// Target is looked up in the registry at fulfillment time, so model types may
// reference each other in any declaration order.
type Relationship struct {
	Name        string
	Target      string
	Cardinality Cardinality
	Kind        RelationKind
	Callback    Callback
	Params      []Param
}

// ModelType is the definition of a model type
type ModelType struct {
	Name string

	// LoadAll keeps unrecognized raw keys as plain attributes
	LoadAll bool

	// Init runs on every record constructed through the registry
	Init func(*record.Record)

	fields        map[string]*Field
	fieldOrder    []string
	relationships map[string]*Relationship
	relOrder      []string
	methods       map[string]Method
}

// NewModelType creates an empty model type with the implicit "id" field and the
// standard bound methods
func NewModelType(name string) *ModelType {
	t := &ModelType{
		Name:          name,
		fields:        make(map[string]*Field),
		relationships: make(map[string]*Relationship),
		methods:       make(map[string]Method),
	}
	t.AddField(&Field{Name: record.IDField})
	for methodName, m := range standardMethods {
		t.methods[methodName] = m
	}
	return t
}

// AddField declares a plain field, replacing a previous declaration of the same name
func (t *ModelType) AddField(f *Field) {
	if _, exists := t.fields[f.Name]; !exists {
		t.fieldOrder = append(t.fieldOrder, f.Name)
	}
	t.fields[f.Name] = f
}

// AddRelationship declares a relationship, replacing a previous declaration of the same name
func (t *ModelType) AddRelationship(rel *Relationship) {
	if _, exists := t.relationships[rel.Name]; !exists {
		t.relOrder = append(t.relOrder, rel.Name)
	}
	t.relationships[rel.Name] = rel
}

// AddMethod registers a bound method callable by name from relationship callbacks
func (t *ModelType) AddMethod(name string, m Method) {
	t.methods[name] = m
}

// Field returns the declared field
func (t *ModelType) Field(name string) (*Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Relationship returns the declared relationship
func (t *ModelType) Relationship(name string) (*Relationship, bool) {
	rel, ok := t.relationships[name]
	return rel, ok
}

// Method returns the bound method
func (t *ModelType) Method(name string) (Method, bool) {
	m, ok := t.methods[name]
	return m, ok
}

// IsField reports whether name is a declared plain field
func (t *ModelType) IsField(name string) bool {
	_, ok := t.fields[name]
	return ok
}

// IsRelationship reports whether name is a declared relationship
func (t *ModelType) IsRelationship(name string) bool {
	_, ok := t.relationships[name]
	return ok
}

// Fields returns the plain fields in declaration order
func (t *ModelType) Fields() []*Field {
	result := make([]*Field, 0, len(t.fieldOrder))
	for _, name := range t.fieldOrder {
		result = append(result, t.fields[name])
	}
	return result
}

// Relationships returns the relationships in declaration order
func (t *ModelType) Relationships() []*Relationship {
	result := make([]*Relationship, 0, len(t.relOrder))
	for _, name := range t.relOrder {
		result = append(result, t.relationships[name])
	}
	return result
}

// RelationshipNames returns the relationship names in sorted order
func (t *ModelType) RelationshipNames() []string {
	names := make([]string, 0, len(t.relationships))
	for name := range t.relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodNames returns the bound method names in sorted order
func (t *ModelType) MethodNames() []string {
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
