package loader

import (
	"sort"
	"strings"
	"sync"
)

// CanonicalName returns the canonical form of a builtin or client name:
// surrounding whitespace stripped and all letters lowercased. Every name
// lookup in the system goes through this function so that components cannot
// drift apart on normalization rules.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Registry is a thread-safe map from canonical builtin names to factories of
// one capability (parsers, agents). F is the factory function type for that
// capability.
type Registry[F any] struct {
	mu      sync.RWMutex
	entries map[string]F
}

// NewRegistry creates a new empty Registry.
func NewRegistry[F any]() *Registry[F] {
	return &Registry[F]{entries: make(map[string]F)}
}

// Register adds a factory under the canonical form of name.
// Re-registering a name overwrites the previous entry (last-write-wins).
func (r *Registry[F]) Register(name string, factory F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[CanonicalName(name)] = factory
}

// Lookup retrieves a factory by name, case-insensitively.
func (r *Registry[F]) Lookup(name string) (F, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.entries[CanonicalName(name)]
	return f, ok
}

// Names returns all registered names in alphabetical order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize upgrades a bare recognized builtin name to the "builtin:" prefixed
// form. Specs that already carry a prefix, contain a colon, or contain a path
// separator are returned untouched, as are unrecognized bare names (those
// surface as an error downstream rather than being silently rewritten).
func (r *Registry[F]) Normalize(spec string) string {
	if spec == "" {
		return spec
	}
	spec = strings.TrimSpace(spec)
	if strings.Contains(spec, ":") || strings.ContainsAny(spec, `/\`) {
		return spec
	}
	if _, ok := r.Lookup(spec); ok {
		return "builtin:" + spec
	}
	return spec
}
