package schema

import (
	"sort"
	"sync"

	"github.com/conduit-lang/trident/internal/orm/record"
	"go.uber.org/zap"
)

// Constructor instantiates a record of a registered model type
type Constructor func(attrs map[string]interface{}) *record.Record

// Registry holds the schema table (name -> model type) and the model table
// (name -> constructor). Definitions happen during startup; afterwards the
// registry is read concurrently.
type Registry struct {
	types  map[string]*ModelType
	models map[string]Constructor
	logger *zap.Logger
	mu     sync.RWMutex
}

// Default is the process-wide registry
var Default = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		types:  make(map[string]*ModelType),
		models: make(map[string]Constructor),
		logger: zap.NewNop(),
	}
}

// SetLogger replaces the registry logger
func (r *Registry) SetLogger(logger *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Define registers a model type; redefinition replaces the previous entry
func (r *Registry) Define(t *ModelType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.types[t.Name]
	r.types[t.Name] = t
	r.models[t.Name] = constructorFor(t)

	r.logger.Debug("model type defined",
		zap.String("model", t.Name),
		zap.Int("fields", len(t.fieldOrder)),
		zap.Int("relationships", len(t.relOrder)),
		zap.Bool("replaced", replaced))
}

// Get retrieves a model type by name
func (r *Registry) Get(name string) (*ModelType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[name]
	if !exists {
		return nil, &TypeNotFoundError{Name: name}
	}
	return t, nil
}

// New instantiates a record of the named model type with the given attributes
func (r *Registry) New(name string, attrs map[string]interface{}) (*record.Record, error) {
	r.mu.RLock()
	ctor, exists := r.models[name]
	r.mu.RUnlock()

	if !exists {
		return nil, &TypeNotFoundError{Name: name}
	}
	return ctor(attrs), nil
}

// Remove deletes a model type from both tables (useful for testing)
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.types, name)
	delete(r.models, name)
}

// Clear removes all model types (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.types = make(map[string]*ModelType)
	r.models = make(map[string]Constructor)
}

// Exists checks if a model type is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[name]
	return exists
}

// Count returns the number of registered model types
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.types)
}

// List returns the registered model-type names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the schema table
func (r *Registry) All() map[string]*ModelType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ModelType, len(r.types))
	for k, v := range r.types {
		result[k] = v
	}
	return result
}

// Define registers a model type in the Default registry
func Define(t *ModelType) {
	Default.Define(t)
}

// Lookup retrieves a model type from the Default registry
func Lookup(name string) (*ModelType, error) {
	return Default.Get(name)
}

func constructorFor(t *ModelType) Constructor {
	return func(attrs map[string]interface{}) *record.Record {
		rec := record.New(t.Name, attrs)
		if t.Init != nil {
			t.Init(rec)
		}
		return rec
	}
}
