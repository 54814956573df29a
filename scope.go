package alembic

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Scope is a cache-lifetime token. ScopeSingleton marks values cached for the
// container's lifetime; a nil *Scope marks transient (never cached) results;
// named scopes created with Container.NewScope carry a per-container
// generation counter that invalidates cached values on reset.
type Scope struct {
	name      string
	singleton bool
}

// ScopeSingleton is the permanent scope. It is never invalidated while the
// container lives and is not resettable.
var ScopeSingleton = &Scope{name: "singleton", singleton: true}

// Name returns the scope's name.
func (s *Scope) Name() string { return s.name }

func (s *Scope) String() string { return scopeLabel(s) }

func scopeLabel(s *Scope) string {
	if s == nil {
		return "transient"
	}
	return s.name
}

// scopeRegistry owns the generation counters for the named scopes of one
// container. Tokens are shared across clones; generations are not, so a
// reset inside a sandbox never leaks to an ancestor.
type scopeRegistry struct {
	mu     sync.Mutex
	scopes []*Scope
	gens   map[*Scope]uint64
}

func newScopeRegistry() *scopeRegistry {
	return &scopeRegistry{gens: make(map[*Scope]uint64)}
}

func (r *scopeRegistry) newScope(name string) *Scope {
	if name == "" {
		name = "scope-" + uuid.NewString()
	}

	s := &Scope{name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.scopes = append(r.scopes, s)
	r.gens[s] = 0

	return s
}

// generation returns the current generation of s, or false for tokens this
// registry does not know.
func (r *scopeRegistry) generation(s *Scope) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen, ok := r.gens[s]

	return gen, ok
}

// reset bumps the generation of s, logically invalidating every value cached
// under the previous one. Invalidation is lazy: stale entries are detected by
// generation stamp at lookup time, no sweep happens here.
func (r *scopeRegistry) reset(s *Scope) error {
	if s == nil {
		return ErrInvalidScope(s, "transient results are never cached, nothing to reset")
	}

	if s.singleton {
		return ErrInvalidScope(s, "the singleton scope is not resettable")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gens[s]; !ok {
		return ErrInvalidScope(s, "unknown scope token for this container")
	}

	r.gens[s]++

	return nil
}

// clone shares the scope tokens but copies the generation counters.
func (r *scopeRegistry) clone() *scopeRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := &scopeRegistry{
		scopes: append([]*Scope(nil), r.scopes...),
		gens:   make(map[*Scope]uint64, len(r.gens)),
	}
	for s, gen := range r.gens {
		out.gens[s] = gen
	}

	return out
}

// validate checks that a registration-time scope token is usable with this
// registry: ScopeSingleton, transient (nil), or a known named scope.
func (r *scopeRegistry) validate(s *Scope) error {
	if s == nil || s.singleton {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gens[s]; !ok {
		return ErrInvalidScope(s, fmt.Sprintf("scope %q was not created by this container", s.name))
	}

	return nil
}
