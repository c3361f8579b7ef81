// Package record provides the in-memory instance of a model type: scalar attributes,
// a process-local identity, and a cache of resolved relationship values.
package record

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// IDField is the attribute holding the persisted identity assigned by the remote store
const IDField = "id"

// RID is the process-local identity of a record
type RID = uuid.UUID

// Record is an instance of a model type
type Record struct {
	mu    sync.RWMutex
	model string
	rid   RID
	attrs map[string]interface{}
	cache map[string]interface{} // present key = resolved
}

// New creates a record of the given model type with a fresh RID.
// The attribute map is copied; an "id" key sets the persisted identity.
func New(model string, attrs map[string]interface{}) *Record {
	r := &Record{
		model: model,
		rid:   uuid.New(),
		attrs: make(map[string]interface{}, len(attrs)),
		cache: make(map[string]interface{}),
	}
	for k, v := range attrs {
		r.attrs[k] = v
	}
	return r
}

// Model returns the model type name
func (r *Record) Model() string {
	return r.model
}

// RID returns the process-local identity
func (r *Record) RID() RID {
	return r.rid
}

// ID returns the persisted identity, or nil when the record has not been
// persisted or has been anonymized
func (r *Record) ID() interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attrs[IDField]
}

// SetID sets the persisted identity
func (r *Record) SetID(id interface{}) {
	r.Set(IDField, id)
}

// Get returns a plain attribute
func (r *Record) Get(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.attrs[name]
	return v, ok
}

// Set stores a plain attribute
func (r *Record) Set(name string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attrs[name] = value
}

// Delete removes a plain attribute
func (r *Record) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attrs, name)
}

// Attributes returns a shallow copy of the attribute map
func (r *Record) Attributes() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]interface{}, len(r.attrs))
	for k, v := range r.attrs {
		result[k] = v
	}
	return result
}

// AttributeNames returns the attribute names in sorted order
func (r *Record) AttributeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.attrs)
}

// Cached returns the resolved value of a relationship. ok is false while the
// relationship is unresolved; a resolved nil returns (nil, true).
func (r *Record) Cached(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.cache[name]
	return v, ok
}

// Resolve marks a relationship as resolved with the given value
func (r *Record) Resolve(name string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[name] = value
}

// Invalidate resets a relationship to unresolved
func (r *Record) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, name)
}

// InvalidateAll resets every relationship to unresolved
func (r *Record) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]interface{})
}

// IsResolved reports whether the relationship has a cached value
func (r *Record) IsResolved(name string) bool {
	_, ok := r.Cached(name)
	return ok
}

// ResolvedNames returns the names of resolved relationships in sorted order
func (r *Record) ResolvedNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.cache)
}

// Resolved returns a shallow copy of the relationship cache
func (r *Record) Resolved() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]interface{}, len(r.cache))
	for k, v := range r.cache {
		result[k] = v
	}
	return result
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
