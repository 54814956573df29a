package alembic

import (
	"sync"
)

// Result is what a provider hands back for a claimed key: the value plus the
// scope it should be cached under. Scope == ScopeSingleton marks the value
// for permanent caching, a nil Scope marks no caching, a named scope marks
// caching keyed by the scope's current generation.
type Result struct {
	Value any
	Scope *Scope
}

// Resolver resolves nested dependencies on behalf of a provider. The calls
// participate in the same cycle stack as the resolution that invoked the
// provider, so self-referential chains surface as CycleError instead of
// recursing forever.
type Resolver interface {
	// Resolve returns the value for key.
	Resolve(key Key) (any, error)

	// ResolveResult returns the value together with the scope it resolved
	// under, for providers that propagate scope restrictions (links).
	ResolveResult(key Key) (Result, error)

	// Container returns the resolving container, for values that outlive the
	// current call and resolve lazily later (tag views). Resolutions started
	// from the container get a fresh cycle stack.
	Container() Container
}

// Provider implements one resolution strategy. Providers are independent and
// mutually exclusive over the keys they claim; overlap is rejected at
// registration time through the Registrar.
type Provider interface {
	// Name identifies the provider in logs and describe trees.
	Name() string

	// Claims reports whether this provider can resolve key. It must be pure
	// and safe to call before the container is fully assembled.
	Claims(key Key) bool

	// Resolve produces a value for a claimed key. Returning ErrNotClaimed
	// lets the container continue with later providers; providers whose
	// registration already guarantees exclusivity (factories, links, lazy
	// calls) must resolve or fail, never fall through.
	Resolve(key Key, r Resolver) (Result, error)

	// Clone returns an independent copy of the provider's registration
	// metadata for a sandbox. keepCache carries over internally memoized
	// state (shared by reference) when true.
	Clone(keepCache bool) Provider

	// DescribeKey returns pure metadata about a claimed key, without
	// invoking any constructor.
	DescribeKey(key Key) (KeyInfo, bool)
}

// Binder is implemented by providers that register keys through the
// container's duplicate and freeze checks. The container binds the provider
// when RegisterProvider is called.
type Binder interface {
	Bind(reg *Registrar)
}

// KeyInfo is the per-key metadata a provider exposes for describe trees.
type KeyInfo struct {
	Label         string
	Scope         *Scope
	InheritsScope bool // node adopts the scope of its target (static aliases)
	Anonymous     bool // node has no meaningful user-facing identity (bare callables)
	Ambiguous     bool // several candidates compete for the key (getter namespaces)
	DependsOn     []Key
}

// Registrar is the container-issued handle a bound provider registers keys
// through. It enforces the cross-provider duplicate invariant and the freeze
// transition in one place, and doubles as the key -> owning provider index
// used by Describe.
type Registrar struct {
	c *containerImpl
	p Provider
}

// Reserve claims key for the bound provider. It fails with ErrFrozen after
// Freeze and with a duplicate error when any provider already owns the key.
// A failed Reserve leaves no partial state.
func (r *Registrar) Reserve(key Key) error {
	return r.c.reserveKey(key, r.p)
}

// CheckMutable fails with ErrFrozen once the container is frozen. Providers
// call it from register methods that do not reserve a new key.
func (r *Registrar) CheckMutable() error {
	return r.c.checkMutable()
}

// ValidateScope checks a registration-time scope token against the
// container's scope registry.
func (r *Registrar) ValidateScope(s *Scope) error {
	return r.c.scopes.validate(s)
}

// providerBase carries the registrar handle and the registration lock shared
// by the built-in providers.
type providerBase struct {
	mu  sync.RWMutex
	reg *Registrar
}

// Bind implements Binder.
func (b *providerBase) Bind(reg *Registrar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reg = reg
}

// registrar returns the bound registrar or ErrProviderNotBound.
func (b *providerBase) registrar() (*Registrar, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.reg == nil {
		return nil, ErrProviderNotBound
	}

	return b.reg, nil
}
