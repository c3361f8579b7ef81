package dumper

import (
	"fmt"
	"sort"
	"strings"
)

// OptsKey is the entry of a nested include map that carries the options of
// the relationship it belongs to
const OptsKey = "opts"

// Options control the dump of one record
type Options struct {
	// Only keeps just these plain fields when non-empty
	Only []string
	// Exclude drops these plain fields
	Exclude []string
	// Include names the relationships to expand and their nested options
	Include *Tree
}

// Tree is a parsed include tree: an ordered list of relationships to expand,
// each with the options applied to its target records
type Tree struct {
	entries []*Entry
}

// Entry is one expanded relationship
type Entry struct {
	Name    string
	Options Options
}

// Entries returns the relationships of the tree in order
func (t *Tree) Entries() []*Entry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Len returns the number of relationships in the tree
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Get returns the entry for a relationship name
func (t *Tree) Get(name string) (*Entry, bool) {
	for _, e := range t.Entries() {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// add inserts or replaces an entry, keeping the position of the first occurrence
func (t *Tree) add(e *Entry) {
	for i, existing := range t.entries {
		if existing.Name == e.Name {
			t.entries[i] = e
			return
		}
	}
	t.entries = append(t.entries, e)
}

// String returns a canonical form of the tree
func (t *Tree) String() string {
	parts := make([]string, 0, t.Len())
	for _, e := range t.Entries() {
		sig := e.Options.signature()
		if sig == "" {
			parts = append(parts, e.Name)
		} else {
			parts = append(parts, e.Name+"("+sig+")")
		}
	}
	return strings.Join(parts, ",")
}

// Include builds a tree from relationship names, each expanded with default options
func Include(names ...string) *Tree {
	t := &Tree{}
	for _, name := range names {
		t.add(&Entry{Name: name})
	}
	return t
}

// With adds a relationship with explicit nested options and returns the tree
func (t *Tree) With(name string, opts Options) *Tree {
	t.add(&Entry{Name: name, Options: opts})
	return t
}

// Parse builds a tree from its loose form: nil, a relationship name, a
// sequence of names or nested trees, a map from relationship name to nested
// tree (whose "opts" entry supplies only/exclude/include for that
// relationship), or a *Tree. Map keys are taken in sorted order.
func Parse(v interface{}) (*Tree, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *Tree:
		return val, nil
	case map[string]interface{}:
		if _, ok := val[OptsKey]; ok {
			return nil, fmt.Errorf("%w: %q is only valid inside a relationship", ErrInvalidInclude, OptsKey)
		}
	}
	return parseTree(v)
}

// MustParse is like Parse but panics on error
func MustParse(v interface{}) *Tree {
	t, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return t
}

// ParsePaths builds a tree from dotted paths such as "books.meta"
func ParsePaths(paths ...string) (*Tree, error) {
	root := &Tree{}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}

		current := root
		for _, name := range strings.Split(path, ".") {
			if name == "" {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidInclude, path)
			}
			e, ok := current.Get(name)
			if !ok {
				e = &Entry{Name: name}
				current.add(e)
			}
			if e.Options.Include == nil {
				e.Options.Include = &Tree{}
			}
			current = e.Options.Include
		}
	}
	prune(root)
	return root, nil
}

// prune drops empty nested trees so they sign like default options
func prune(t *Tree) {
	for _, e := range t.Entries() {
		if e.Options.Include.Len() == 0 {
			e.Options.Include = nil
			continue
		}
		prune(e.Options.Include)
	}
}

func parseTree(v interface{}) (*Tree, error) {
	t := &Tree{}

	switch val := v.(type) {
	case nil:
		return t, nil
	case *Tree:
		return val, nil
	case string:
		t.add(&Entry{Name: val})
	case []string:
		for _, name := range val {
			t.add(&Entry{Name: name})
		}
	case []interface{}:
		for _, item := range val {
			sub, err := parseTree(item)
			if err != nil {
				return nil, err
			}
			for _, e := range sub.entries {
				t.add(e)
			}
		}
	case map[string]interface{}:
		names := make([]string, 0, len(val))
		for name := range val {
			if name != OptsKey {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			opts, err := parseNested(val[name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			t.add(&Entry{Name: name, Options: opts})
		}
	default:
		return nil, fmt.Errorf("%w: unsupported include value %T", ErrInvalidInclude, v)
	}

	return t, nil
}

// parseNested reads the value attached to a relationship in an include map
func parseNested(v interface{}) (Options, error) {
	var opts Options

	m, isMap := v.(map[string]interface{})
	if !isMap {
		nested, err := parseTree(v)
		if err != nil {
			return opts, err
		}
		opts.Include = nonEmpty(nested)
		return opts, nil
	}

	nested, err := parseTree(m)
	if err != nil {
		return opts, err
	}

	if raw, ok := m[OptsKey]; ok && raw != nil {
		optsMap, ok := raw.(map[string]interface{})
		if !ok {
			return opts, fmt.Errorf("%w: %q must be a map, got %T", ErrInvalidInclude, OptsKey, raw)
		}
		if opts.Only, err = stringList(optsMap["only"]); err != nil {
			return opts, fmt.Errorf("only: %w", err)
		}
		if opts.Exclude, err = stringList(optsMap["exclude"]); err != nil {
			return opts, fmt.Errorf("exclude: %w", err)
		}
		if inc, ok := optsMap["include"]; ok {
			extra, err := parseTree(inc)
			if err != nil {
				return opts, fmt.Errorf("include: %w", err)
			}
			for _, e := range extra.entries {
				nested.add(e)
			}
		}
	}

	opts.Include = nonEmpty(nested)
	return opts, nil
}

func nonEmpty(t *Tree) *Tree {
	if t.Len() == 0 {
		return nil
	}
	return t
}

func stringList(v interface{}) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: expected field name, got %T", ErrInvalidInclude, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected field names, got %T", ErrInvalidInclude, v)
	}
}

// signature is a canonical string of the options, used by the cycle guard
func (o Options) signature() string {
	var parts []string
	if len(o.Only) > 0 {
		only := append([]string(nil), o.Only...)
		sort.Strings(only)
		parts = append(parts, "only="+strings.Join(only, "|"))
	}
	if len(o.Exclude) > 0 {
		exclude := append([]string(nil), o.Exclude...)
		sort.Strings(exclude)
		parts = append(parts, "exclude="+strings.Join(exclude, "|"))
	}
	if o.Include.Len() > 0 {
		parts = append(parts, "include="+o.Include.String())
	}
	return strings.Join(parts, ";")
}

// allows reports whether a plain field passes Only and Exclude
func (o Options) allows(name string) bool {
	if len(o.Only) > 0 && !contains(o.Only, name) {
		return false
	}
	return !contains(o.Exclude, name)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
