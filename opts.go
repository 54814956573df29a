package alembic

import "go.uber.org/zap"

// Option configures a container at construction.
type Option func(*containerImpl)

// WithLogger sets the structured logger. Container events (registration,
// freeze, scope resets, clones) and resolution outcomes are logged at Debug.
// The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *containerImpl) {
		if l != nil {
			c.logger = l
		}
	}
}

// BindOption is a configuration option for key registration on the built-in
// providers.
type BindOption func(*bindOptions)

type bindOptions struct {
	scope     *Scope
	transient bool
}

// InScope caches the value under a named scope's current generation.
func InScope(s *Scope) BindOption {
	return func(o *bindOptions) { o.scope = s }
}

// AsTransient disables caching: a new value is constructed on each resolve.
func AsTransient() BindOption {
	return func(o *bindOptions) { o.transient = true }
}

// mergeBindOptions folds options into the effective scope. The default is
// singleton.
func mergeBindOptions(opts []BindOption) *Scope {
	var merged bindOptions
	for _, opt := range opts {
		opt(&merged)
	}

	if merged.transient {
		return nil
	}

	if merged.scope != nil {
		return merged.scope
	}

	return ScopeSingleton
}

// CloneOption configures Container.Clone.
type CloneOption func(*cloneOptions)

type cloneOptions struct {
	keepSingletons bool
	unfrozen       bool
}

// KeepSingletons carries already-materialized singleton values into the
// clone, shared by reference. Mutations of those shared values are visible
// back in the original container; the sandbox only isolates registration
// state and newly constructed values.
func KeepSingletons() CloneOption {
	return func(o *cloneOptions) { o.keepSingletons = true }
}

// Unfrozen leaves the clone open for further registration. By default clones
// start frozen so test sandboxes cannot casually grow new global
// dependencies.
func Unfrozen() CloneOption {
	return func(o *cloneOptions) { o.unfrozen = true }
}
