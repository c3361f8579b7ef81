// Package loader deserializes raw nested values (as decoded from a network
// payload) into record graphs.
package loader

import (
	"fmt"
	"strconv"

	"github.com/conduit-lang/trident/internal/orm/record"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"github.com/conduit-lang/trident/internal/payload"
	"go.uber.org/zap"
)

// Loader turns raw values into records of registered model types
type Loader struct {
	registry *schema.Registry
	logger   *zap.Logger
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the loader logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a loader backed by the given registry
func New(registry *schema.Registry, opts ...Option) *Loader {
	l := &Loader{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load deserializes raw into a record of the named model type. raw is a
// map[string]interface{}; an existing *record.Record is returned as-is.
// Relationships present in raw are resolved with the loaded records; the
// others stay unresolved.
func (l *Loader) Load(model string, raw interface{}) (*record.Record, error) {
	if rec, ok := raw.(*record.Record); ok {
		return rec, nil
	}

	data, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: cannot load %s from %T", ErrUnexpectedValue, model, raw)
	}

	t, err := l.registry.Get(model)
	if err != nil {
		return nil, err
	}

	rec, err := l.registry.New(model, nil)
	if err != nil {
		return nil, err
	}

	for key, value := range data {
		if field, ok := t.Field(key); ok {
			if field.Loadable() {
				rec.Set(key, value)
			}
			continue
		}

		if rel, ok := t.Relationship(key); ok {
			if value == nil {
				continue
			}
			loaded, err := l.LoadValue(rel.Target, rel.Cardinality, value)
			if err != nil {
				return nil, record.WithPath(key, err)
			}
			rec.Resolve(key, loaded)
			continue
		}

		if t.LoadAll {
			rec.Set(key, value)
			continue
		}
		l.logger.Debug("dropping undeclared key", zap.String("model", model), zap.String("key", key))
	}

	return rec, nil
}

// LoadMany deserializes a raw sequence into records. nil elements stay nil.
func (l *Loader) LoadMany(model string, raw interface{}) ([]*record.Record, error) {
	items, ok := sequence(raw)
	if !ok {
		return nil, fmt.Errorf("%w: cannot load a sequence of %s from %T", ErrUnexpectedValue, model, raw)
	}

	records := make([]*record.Record, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		rec, err := l.Load(model, item)
		if err != nil {
			return nil, record.WithPath(strconv.Itoa(i), err)
		}
		records[i] = rec
	}
	return records, nil
}

// LoadValue deserializes raw according to cardinality. The result is nil,
// a *record.Record (One) or a []*record.Record (Many). A sequence for a
// single-valued relationship yields its first element; a single value for a
// sequence-valued relationship yields a one-element sequence.
func (l *Loader) LoadValue(model string, cardinality schema.Cardinality, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if rec, ok := raw.(*record.Record); ok && rec == nil {
		return nil, nil
	}

	switch cardinality {
	case schema.Many:
		if _, ok := sequence(raw); !ok {
			raw = []interface{}{raw}
		}
		return l.LoadMany(model, raw)
	default:
		if _, ok := sequence(raw); ok {
			raw = schema.First(raw)
			if raw == nil {
				return nil, nil
			}
		}
		return l.Load(model, raw)
	}
}

// LoadJSON decodes a JSON document and loads it as one record, or as a
// sequence of records when the document is an array
func (l *Loader) LoadJSON(model string, data []byte) (interface{}, error) {
	raw, err := payload.DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	if _, ok := raw.([]interface{}); ok {
		return l.LoadMany(model, raw)
	}
	return l.Load(model, raw)
}

func sequence(raw interface{}) ([]interface{}, bool) {
	switch seq := raw.(type) {
	case []interface{}:
		return seq, true
	case []map[string]interface{}:
		out := make([]interface{}, len(seq))
		for i, m := range seq {
			out[i] = m
		}
		return out, true
	case []*record.Record:
		out := make([]interface{}, len(seq))
		for i, r := range seq {
			if r != nil {
				out[i] = r
			}
		}
		return out, true
	default:
		return nil, false
	}
}
