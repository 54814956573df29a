// Package alembic is a runtime dependency-resolution engine: a container that
// resolves opaque dependency keys to values through an ordered list of
// pluggable providers, with cycle detection, at-most-once singleton
// construction under concurrency, generation-based scope invalidation, a
// one-way freeze transition, and clone-based test sandboxes.
package alembic

// Key identifies a dependency. Any comparable value works as a key (strings
// and small structs are typical); composite keys carrying construction
// arguments are built with Parameterized / ParameterizedKV.
type Key = any

// Container is the central registry. Providers are installed while the
// container is open; after Freeze only resolution remains available.
type Container interface {
	// RegisterProvider appends a provider to the resolution chain.
	// Providers are consulted in registration order; this order is part of
	// the observable contract.
	RegisterProvider(p Provider) error

	// Resolve returns the value for key, constructing it if needed.
	Resolve(key Key) (any, error)

	// Has reports whether any provider claims the key.
	Has(key Key) bool

	// Freeze forbids further registration. Idempotent; resolution continues
	// to work on a frozen container.
	Freeze()

	// Frozen reports whether Freeze has been called.
	Frozen() bool

	// NewScope creates a named invalidation scope. An empty name yields a
	// generated anonymous name. Rejected once the container is frozen.
	NewScope(name string) (*Scope, error)

	// ResetScope bumps the scope's generation, invalidating every value
	// cached under the previous one. The singleton and transient scopes are
	// not resettable.
	ResetScope(s *Scope) error

	// Clone produces an isolated copy of the container's mutable state for
	// test sandboxes. Clones are frozen unless Unfrozen is passed, and nest
	// without leaking state to any ancestor.
	Clone(opts ...CloneOption) (Container, error)

	// OverrideSingleton replaces the value for key inside a sandbox,
	// bypassing duplicate checks. Last write wins. Errors on non-sandbox
	// containers.
	OverrideSingleton(key Key, value any) error

	// OverrideFactory replaces the construction of key inside a sandbox,
	// bypassing duplicate checks. Last write wins. Errors on non-sandbox
	// containers.
	OverrideFactory(key Key, fn Factory, opts ...BindOption) error

	// Describe walks provider metadata to build a dependency tree for key
	// without invoking any constructor.
	Describe(key Key) (*DescribeNode, error)

	// Use appends middleware around Resolve calls.
	Use(m Middleware)

	// Providers returns the names of the registered providers in order.
	Providers() []string
}

// New creates an empty, open container.
func New(opts ...Option) Container {
	return newContainerImpl(opts...)
}
