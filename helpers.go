package alembic

import (
	"fmt"

	"go.uber.org/multierr"
)

// Resolve with type safety.
func Resolve[T any](c Container, key Key) (T, error) {
	var zero T

	instance, err := c.Resolve(key)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, ErrTypeMismatch(key, instance)
	}

	return typed, nil
}

// Must resolves or panics - use only during startup.
func Must[T any](c Container, key Key) T {
	instance, err := Resolve[T](c, key)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", keyLabel(key), err))
	}

	return instance
}

// ResolveTagged resolves a tag collection view with type safety on the view.
func ResolveTagged(c Container, tag string) (*TagView, error) {
	return Resolve[*TagView](c, Tagged{Tag: tag})
}

// FactoryRegistration holds configuration for one factory to be registered.
type FactoryRegistration struct {
	Key     Key
	Factory Factory
	Options []BindOption
}

// Entry creates a FactoryRegistration for batch registration.
func Entry(key Key, fn Factory, opts ...BindOption) FactoryRegistration {
	return FactoryRegistration{Key: key, Factory: fn, Options: opts}
}

// RegisterFactories registers multiple factories in a single call, collecting
// every failure rather than stopping at the first.
//
// Example:
//
//	err := alembic.RegisterFactories(fp,
//	    alembic.Entry("db", newDatabase),
//	    alembic.Entry("cache", newCache, alembic.AsTransient()),
//	)
func RegisterFactories(p *FactoryProvider, regs ...FactoryRegistration) error {
	var err error
	for _, reg := range regs {
		err = multierr.Append(err, p.RegisterFactory(reg.Key, reg.Factory, reg.Options...))
	}
	return err
}

// Supply wraps a pre-built value as a Factory. Useful with OverrideFactory
// when a test wants a canned instance per resolution scope.
func Supply(value any) Factory {
	return func(Resolver, *CallArgs) (any, error) {
		return value, nil
	}
}
