// Package copier produces anonymized clones of record graphs. Every reachable
// record is cloned once with a fresh RID and a cleared persisted id, so shared
// references and cycles in the original keep their shape in the clone.
package copier

import (
	"reflect"
	"time"

	"github.com/conduit-lang/trident/internal/orm/record"
	"go.uber.org/zap"
)

// Copier clones record graphs. Records reached through several Copy calls on
// the same Copier are cloned only once. A Copier is not safe for concurrent
// use and should be discarded after an error.
type Copier struct {
	clones  map[record.RID]*record.Record
	arena   []*record.Record
	pending []*record.Record
	logger  *zap.Logger
}

// Option configures a Copier
type Option func(*Copier)

// WithLogger sets the copier logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Copier) {
		c.logger = logger
	}
}

// New creates a copier with an empty identity map
func New(opts ...Option) *Copier {
	c := &Copier{
		clones: make(map[record.RID]*record.Record),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Copy clones root and every record reachable from it
func Copy(root *record.Record) (*record.Record, error) {
	return New().Copy(root)
}

// CopyAll clones several roots in one pass, preserving references shared
// between them
func CopyAll(roots []*record.Record) ([]*record.Record, error) {
	c := New()
	out := make([]*record.Record, len(roots))
	for i, root := range roots {
		clone, err := c.Copy(root)
		if err != nil {
			return nil, err
		}
		out[i] = clone
	}
	return out, nil
}

// Copy clones rec, reusing clones made by earlier calls on this Copier.
// Records are reached through plain attributes and resolved relationships;
// unresolved relationships stay unresolved in the clone.
func (c *Copier) Copy(rec *record.Record) (*record.Record, error) {
	if rec == nil {
		return nil, nil
	}

	before := len(c.arena)
	root := c.cloneOf(rec)

	for len(c.pending) > 0 {
		orig := c.pending[len(c.pending)-1]
		c.pending = c.pending[:len(c.pending)-1]
		if err := c.fill(orig); err != nil {
			c.pending = nil
			return nil, err
		}
	}

	c.logger.Debug("copied record graph",
		zap.String("model", rec.Model()),
		zap.Int("cloned", len(c.arena)-before),
		zap.Int("total", len(c.arena)))
	return root, nil
}

// Len returns the number of records cloned so far
func (c *Copier) Len() int {
	return len(c.arena)
}

// Clone returns the clone of an original record, if one was made
func (c *Copier) Clone(orig *record.Record) (*record.Record, bool) {
	if orig == nil {
		return nil, false
	}
	clone, ok := c.clones[orig.RID()]
	return clone, ok
}

// cloneOf returns the clone of orig, creating an empty one and scheduling
// orig for filling when it has not been seen yet
func (c *Copier) cloneOf(orig *record.Record) *record.Record {
	if clone, ok := c.clones[orig.RID()]; ok {
		return clone
	}
	clone := record.New(orig.Model(), nil)
	c.clones[orig.RID()] = clone
	c.arena = append(c.arena, clone)
	c.pending = append(c.pending, orig)
	return clone
}

// fill copies the attributes and resolved relationships of orig into its clone
func (c *Copier) fill(orig *record.Record) error {
	clone := c.clones[orig.RID()]

	for _, name := range orig.AttributeNames() {
		value, _ := orig.Get(name)
		copied, err := c.copyValue(value)
		if err != nil {
			return &UnexpectedValueError{Model: orig.Model(), Attribute: name, Type: err.Error()}
		}
		clone.Set(name, copied)
	}
	clone.Set(record.IDField, nil)

	for name, value := range orig.Resolved() {
		copied, err := c.copyValue(value)
		if err != nil {
			return &UnexpectedValueError{Model: orig.Model(), Attribute: name, Type: err.Error()}
		}
		clone.Resolve(name, copied)
	}
	return nil
}

// unsupported carries the type name of a value that cannot be copied
type unsupported string

func (u unsupported) Error() string { return string(u) }

var timeType = reflect.TypeOf(time.Time{})

// copyValue deep-copies a value, swapping records for their clones
func (c *Copier) copyValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *record.Record:
		if val == nil {
			return nil, nil
		}
		return c.cloneOf(val), nil
	case []*record.Record:
		if val == nil {
			return val, nil
		}
		out := make([]*record.Record, len(val))
		for i, rec := range val {
			if rec != nil {
				out[i] = c.cloneOf(rec)
			}
		}
		return out, nil
	case []interface{}:
		if val == nil {
			return val, nil
		}
		out := make([]interface{}, len(val))
		for i, item := range val {
			copied, err := c.copyValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = copied
		}
		return out, nil
	case map[string]interface{}:
		if val == nil {
			return val, nil
		}
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			copied, err := c.copyValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = copied
		}
		return out, nil
	}

	copied, err := c.copyReflect(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return copied.Interface(), nil
}

func (c *Copier) copyReflect(val reflect.Value) (reflect.Value, error) {
	switch val.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return val, nil

	case reflect.Array:
		out := reflect.New(val.Type()).Elem()
		for i := 0; i < val.Len(); i++ {
			item, err := c.copyElem(val.Index(i), val.Type().Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(item)
		}
		return out, nil

	case reflect.Slice:
		if val.IsNil() {
			return val, nil
		}
		out := reflect.MakeSlice(val.Type(), val.Len(), val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := c.copyElem(val.Index(i), val.Type().Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(item)
		}
		return out, nil

	case reflect.Map:
		if val.IsNil() {
			return val, nil
		}
		out := reflect.MakeMapWithSize(val.Type(), val.Len())
		iter := val.MapRange()
		for iter.Next() {
			item, err := c.copyElem(iter.Value(), val.Type().Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), item)
		}
		return out, nil

	case reflect.Ptr:
		if val.IsNil() {
			return val, nil
		}
		elem, err := c.copyElem(val.Elem(), val.Type().Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(val.Type().Elem())
		out.Elem().Set(elem)
		return out, nil

	case reflect.Struct:
		if val.Type() == timeType {
			return val, nil
		}
	}
	return reflect.Value{}, unsupported(val.Type().String())
}

// copyElem copies a container element, routing interface values back through
// copyValue so records nested in typed containers are remapped too
func (c *Copier) copyElem(val reflect.Value, typ reflect.Type) (reflect.Value, error) {
	if val.Kind() == reflect.Interface {
		if val.IsNil() {
			return reflect.Zero(typ), nil
		}
		copied, err := c.copyValue(val.Interface())
		if err != nil {
			return reflect.Value{}, err
		}
		if copied == nil {
			return reflect.Zero(typ), nil
		}
		return reflect.ValueOf(copied), nil
	}
	if rec, ok := val.Interface().(*record.Record); ok {
		if rec == nil {
			return reflect.Zero(typ), nil
		}
		return reflect.ValueOf(c.cloneOf(rec)), nil
	}
	return c.copyReflect(val)
}
