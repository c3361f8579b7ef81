package session

import (
	"context"
	"sort"
	"sync"

	"github.com/conduit-lang/trident/internal/orm/record"
	"go.uber.org/zap"
)

// MemoryStore keeps raw records in process memory. Results are copies, so
// callers may modify them freely.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*table
	logger *zap.Logger
}

type table struct {
	order []string
	rows  map[string]map[string]interface{}
	next  int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		tables: make(map[string]*table),
		logger: logger,
	}
}

// Find returns the raw record of model with id, or nil
func (s *MemoryStore) Find(ctx context.Context, model string, id interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[model]
	if !ok {
		return nil, nil
	}
	row, ok := t.rows[idKey(id)]
	if !ok {
		return nil, nil
	}
	return copyRaw(row), nil
}

// Where returns the raw records of model matching query, in insertion order
func (s *MemoryStore) Where(ctx context.Context, model string, query map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []interface{}{}
	t, ok := s.tables[model]
	if !ok {
		return out, nil
	}
	for _, key := range t.order {
		row := t.rows[key]
		if Match(row, query) {
			out = append(out, copyRaw(row))
		}
	}
	return out, nil
}

// Put stores raw, assigning the next id when raw has none, and returns the id
func (s *MemoryStore) Put(ctx context.Context, model string, raw map[string]interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[model]
	if !ok {
		t = &table{rows: make(map[string]map[string]interface{})}
		s.tables[model] = t
	}

	row := copyRaw(raw)
	id := row[record.IDField]
	if id == nil {
		t.next++
		id = t.next
		row[record.IDField] = id
	} else if n, ok := number(id); ok && int64(n) > t.next {
		t.next = int64(n)
	}

	key := idKey(id)
	if _, exists := t.rows[key]; !exists {
		t.order = append(t.order, key)
	}
	t.rows[key] = row

	s.logger.Debug("stored record", zap.String("model", model), zap.Any("id", id))
	return id, nil
}

// Delete removes a record
func (s *MemoryStore) Delete(ctx context.Context, model string, id interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[model]
	if !ok {
		return nil
	}
	key := idKey(id)
	if _, ok := t.rows[key]; !ok {
		return nil
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Models returns the names of models holding records, sorted
func (s *MemoryStore) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tables))
	for name, t := range s.tables {
		if len(t.rows) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of records of a model
func (s *MemoryStore) Count(model string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[model]; ok {
		return len(t.rows)
	}
	return 0
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// copyRaw deep-copies the maps and slices of a raw value
func copyRaw(raw map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyRaw(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
