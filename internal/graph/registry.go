package graph

import (
	"sort"
	"strings"
	"sync"
)

// Namespace prefixes stripped before lookup. Legacy graph definitions
// qualify node ids inconsistently; the registry accepts all spellings.
var knownPrefixes = []string{"core/", "nodes/", "volition/"}

// Registry indexes node definitions by id and alias. Registration is
// additive and happens at process start; re-registering an id overwrites
// the previous definition.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	aliases map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:    make(map[string]*Definition),
		aliases: make(map[string]string),
	}
}

// Register adds a definition under its id and all aliases.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	for _, a := range def.Aliases {
		r.aliases[a] = def.ID
	}
}

// Lookup resolves an id or alias to its definition, stripping known
// namespace prefixes first.
func (r *Registry) Lookup(id string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id = stripPrefix(id)
	if def, ok := r.defs[id]; ok {
		return def, true
	}
	if canonical, ok := r.aliases[id]; ok {
		def, ok := r.defs[canonical]
		return def, ok
	}
	return nil, false
}

// IDs returns all registered canonical ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.defs))
	for id := range r.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func stripPrefix(id string) string {
	for _, p := range knownPrefixes {
		if strings.HasPrefix(id, p) {
			return strings.TrimPrefix(id, p)
		}
	}
	return id
}
