package schema

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
)

// RelationshipGraph is the reference graph between model types. Cycles are
// expected (operations point to field values and back) and are not errors.
type RelationshipGraph struct {
	nodes map[string]*ModelType
	edges map[string][]string // model -> relationship targets
}

// NewRelationshipGraph creates a relationship graph over the given model types
func NewRelationshipGraph(types map[string]*ModelType) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: types,
		edges: make(map[string][]string),
	}

	for name, t := range types {
		seen := make(map[string]bool)
		for _, rel := range t.Relationships() {
			if !seen[rel.Target] {
				graph.edges[name] = append(graph.edges[name], rel.Target)
				seen[rel.Target] = true
			}
		}
		sort.Strings(graph.edges[name])
	}

	return graph
}

// GetDependencies returns the model types directly referenced by model
func (g *RelationshipGraph) GetDependencies(model string) []string {
	deps, exists := g.edges[model]
	if !exists {
		return []string{}
	}
	return deps
}

// GetDependents returns the model types that reference model
func (g *RelationshipGraph) GetDependents(model string) []string {
	dependents := []string{}
	for node, deps := range g.edges {
		for _, dep := range deps {
			if dep == model {
				dependents = append(dependents, node)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// Validate reports every relationship whose target is not a known model type
// and every bound callback whose method is missing from its owning type
func (g *RelationshipGraph) Validate() error {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs error
	for _, name := range names {
		t := g.nodes[name]
		for _, rel := range t.Relationships() {
			if _, exists := g.nodes[rel.Target]; !exists {
				errs = multierr.Append(errs, fmt.Errorf("model %s: relationship %s references unknown model %s",
					name, rel.Name, rel.Target))
			}
			if rel.Callback.IsBound() {
				if _, ok := t.Method(rel.Callback.MethodName()); !ok {
					errs = multierr.Append(errs, fmt.Errorf("model %s: relationship %s uses missing method %s",
						name, rel.Name, rel.Callback.MethodName()))
				}
			}
		}
	}
	return errs
}

// ValidateAll checks every registered model type against the others.
// Forward references are allowed at definition time, so this runs once all
// types are defined.
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return NewRelationshipGraph(r.types).Validate()
}

// Graph returns the relationship graph of the registered model types
func (r *Registry) Graph() *RelationshipGraph {
	return NewRelationshipGraph(r.All())
}
