package schema

import (
	"context"
	"fmt"
	"reflect"

	"github.com/conduit-lang/trident/internal/orm/record"
)

// Standard bound method names available on every model type
const (
	MethodFind   = "find"
	MethodWhere  = "where"
	MethodFindBy = "find_by"
)

// Session fetches raw records from the remote store. A result is a raw value
// (map[string]interface{}), a sequence of raw values, a *record.Record, or nil.
// Query values that are slices match any of their elements.
type Session interface {
	Find(ctx context.Context, model string, id interface{}) (interface{}, error)
	Where(ctx context.Context, model string, query map[string]interface{}) (interface{}, error)
}

// Func is a relationship callback supplied directly at declaration time
type Func func(ctx context.Context, target string, params ...interface{}) (interface{}, error)

// Method is a relationship callback bound by name to a model type
type Method func(ctx context.Context, s Session, rec *record.Record, target string, params ...interface{}) (interface{}, error)

// Callback is either a bound method name or a free function
type Callback struct {
	method string
	fn     Func
}

// BoundMethod refers to a method of the owning record's model type, looked up
// when the relationship is fulfilled
func BoundMethod(name string) Callback {
	return Callback{method: name}
}

// FreeFunction uses fn directly as the callback
func FreeFunction(fn Func) Callback {
	return Callback{fn: fn}
}

// IsBound reports whether the callback names a bound method
func (c Callback) IsBound() bool {
	return c.fn == nil
}

// MethodName returns the bound method name, or "" for a free function
func (c Callback) MethodName() string {
	return c.method
}

// Func returns the free function, or nil for a bound method
func (c Callback) Func() Func {
	return c.fn
}

// String returns a readable form of the callback
func (c Callback) String() string {
	if c.IsBound() {
		return c.method
	}
	return "<func>"
}

// Param is a relationship parameter: a literal or a function of the owning record
type Param struct {
	value interface{}
	fn    func(*record.Record) (interface{}, error)
}

// Value is a literal parameter
func Value(v interface{}) Param {
	return Param{value: v}
}

// FromRecord is a parameter computed from the owning record just before the callback runs
func FromRecord(fn func(*record.Record) (interface{}, error)) Param {
	return Param{fn: fn}
}

// Attr is a parameter holding the owning record's attribute (nil when absent)
func Attr(name string) Param {
	return FromRecord(func(r *record.Record) (interface{}, error) {
		v, _ := r.Get(name)
		return v, nil
	})
}

// Query is a parameter building a where-query from the owning record.
// Each entry maps a query key to an attribute name of the owning record.
func Query(keys map[string]string) Param {
	return FromRecord(func(r *record.Record) (interface{}, error) {
		q := make(map[string]interface{}, len(keys))
		for key, attr := range keys {
			q[key], _ = r.Get(attr)
		}
		return q, nil
	})
}

// Evaluate returns the literal or invokes the function with rec
func (p Param) Evaluate(rec *record.Record) (interface{}, error) {
	if p.fn != nil {
		return p.fn(rec)
	}
	return p.value, nil
}

// EvaluateParams evaluates every parameter in order
func EvaluateParams(params []Param, rec *record.Record) ([]interface{}, error) {
	values := make([]interface{}, 0, len(params))
	for i, p := range params {
		v, err := p.Evaluate(rec)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		values = append(values, v)
	}
	return values, nil
}

var standardMethods = map[string]Method{
	MethodFind:   findMethod,
	MethodWhere:  whereMethod,
	MethodFindBy: findByMethod,
}

// findMethod fetches one record of target by id; a nil id fetches nothing
func findMethod(ctx context.Context, s Session, _ *record.Record, target string, params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: %s expects 1 param, got %d", ErrBadParams, MethodFind, len(params))
	}
	if isNil(params[0]) {
		return nil, nil
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s.Find(ctx, target, params[0])
}

// whereMethod fetches every record of target matching the query; a query on a
// nil value matches nothing (e.g. a parent that is not yet persisted)
func whereMethod(ctx context.Context, s Session, _ *record.Record, target string, params ...interface{}) (interface{}, error) {
	query, err := queryParam(MethodWhere, params)
	if err != nil {
		return nil, err
	}
	for _, v := range query {
		if isNil(v) {
			return []interface{}{}, nil
		}
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s.Where(ctx, target, query)
}

// findByMethod returns the first record matching the query, or nil
func findByMethod(ctx context.Context, s Session, rec *record.Record, target string, params ...interface{}) (interface{}, error) {
	result, err := whereMethod(ctx, s, rec, target, params...)
	if err != nil {
		return nil, err
	}
	return First(result), nil
}

func queryParam(method string, params []interface{}) (map[string]interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%w: %s expects 1 param, got %d", ErrBadParams, method, len(params))
	}
	query, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a query map, got %T", ErrBadParams, method, params[0])
	}
	return query, nil
}

// First returns the first element of a sequence result, or the value itself
// when it is not a sequence
func First(v interface{}) interface{} {
	switch seq := v.(type) {
	case nil:
		return nil
	case []interface{}:
		if len(seq) == 0 {
			return nil
		}
		return seq[0]
	case []map[string]interface{}:
		if len(seq) == 0 {
			return nil
		}
		return seq[0]
	case []*record.Record:
		if len(seq) == 0 || seq[0] == nil {
			return nil
		}
		return seq[0]
	default:
		return v
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
