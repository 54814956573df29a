package alembic

import (
	"errors"
	"fmt"
	"sync"
)

var errNilFactory = errors.New("factory cannot be nil")

// Factory builds a value for a key. args is nil unless the key being
// resolved is a parameterized composite, in which case it carries the extra
// construction arguments.
type Factory func(r Resolver, args *CallArgs) (any, error)

// FactoryProvider maps keys to constructor functions. It supports
// parameterized composite keys, pre-built values, and an indirection where
// the constructor itself is another dependency fetched lazily on first use.
//
// Once a FactoryProvider claims a key it resolves or fails; it never falls
// through to later providers.
type FactoryProvider struct {
	providerBase

	entries *keyMap // base key -> *factoryEntry
}

type factoryEntry struct {
	scope      *Scope
	factory    Factory
	factoryKey Key // non-nil: fetch the constructor from this dependency

	mu       sync.Mutex // guards the one-time factoryKey resolution
	resolved bool
}

// NewFactoryProvider creates an empty factory provider. Attach it with
// Container.RegisterProvider before registering keys.
func NewFactoryProvider() *FactoryProvider {
	return &FactoryProvider{entries: newKeyMap()}
}

// Name implements Provider.
func (p *FactoryProvider) Name() string { return "factory" }

// RegisterFactory maps key to a constructor. The default scope is singleton.
func (p *FactoryProvider) RegisterFactory(key Key, fn Factory, opts ...BindOption) error {
	if fn == nil {
		return ErrConstruction(key, errNilFactory)
	}
	return p.register(key, &factoryEntry{scope: mergeBindOptions(opts), factory: fn, resolved: true})
}

// RegisterValue maps key to a pre-built value (always singleton).
func (p *FactoryProvider) RegisterValue(key Key, value any) error {
	return p.register(key, &factoryEntry{
		scope:    ScopeSingleton,
		factory:  func(Resolver, *CallArgs) (any, error) { return value, nil },
		resolved: true,
	})
}

// RegisterFactoryKey maps key to a constructor that is itself a dependency:
// factoryKey is resolved once through the container on first use, and the
// resulting Factory is cached as the constructor from then on.
func (p *FactoryProvider) RegisterFactoryKey(key Key, factoryKey Key, opts ...BindOption) error {
	return p.register(key, &factoryEntry{scope: mergeBindOptions(opts), factoryKey: factoryKey})
}

func (p *FactoryProvider) register(key Key, e *factoryEntry) error {
	reg, err := p.registrar()
	if err != nil {
		return err
	}

	if err := reg.ValidateScope(e.scope); err != nil {
		return err
	}

	if err := reg.Reserve(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries.put(key, e)

	return nil
}

// Claims implements Provider. Parameterized keys are claimed when their base
// key is registered here.
func (p *FactoryProvider) Claims(key Key) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.lookup(key)

	return ok
}

func (p *FactoryProvider) lookup(key Key) (*factoryEntry, bool) {
	if pk, ok := key.(*ParamKey); ok {
		key = pk.Base()
	}

	v, ok := p.entries.get(key)
	if !ok {
		return nil, false
	}

	return v.(*factoryEntry), true
}

// Resolve implements Provider.
func (p *FactoryProvider) Resolve(key Key, r Resolver) (Result, error) {
	p.mu.RLock()
	e, ok := p.lookup(key)
	p.mu.RUnlock()

	if !ok {
		return Result{}, ErrNotClaimed
	}

	fn, err := e.constructor(r)
	if err != nil {
		return Result{}, err
	}

	var args *CallArgs
	if pk, isParam := key.(*ParamKey); isParam {
		args = pk.CallArgs()
	}

	value, err := fn(r, args)
	if err != nil {
		return Result{}, ErrConstruction(key, err)
	}

	return Result{Value: value, Scope: e.scope}, nil
}

// constructor returns the entry's factory, resolving the lazy factoryKey
// indirection exactly once.
func (e *factoryEntry) constructor(r Resolver) (Factory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved {
		return e.factory, nil
	}

	raw, err := r.Resolve(e.factoryKey)
	if err != nil {
		return nil, err
	}

	fn, err := asFactory(raw)
	if err != nil {
		return nil, ErrConstruction(e.factoryKey, err)
	}

	e.factory = fn
	e.resolved = true

	return fn, nil
}

// asFactory accepts the function shapes a fetched constructor may take.
func asFactory(raw any) (Factory, error) {
	switch fn := raw.(type) {
	case Factory:
		return fn, nil
	case func(r Resolver, args *CallArgs) (any, error):
		return fn, nil
	case func() (any, error):
		return func(Resolver, *CallArgs) (any, error) { return fn() }, nil
	default:
		return nil, fmt.Errorf("dependency is not a usable constructor, got %T", raw)
	}
}

// Clone implements Provider. Registration metadata is copied; the one-time
// factoryKey resolution state travels with it (it is memoized wiring, not a
// constructed value).
func (p *FactoryProvider) Clone(keepCache bool) Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := NewFactoryProvider()
	p.entries.each(func(k Key, v any) bool {
		e := v.(*factoryEntry)

		e.mu.Lock()
		out.entries.put(k, &factoryEntry{
			scope:      e.scope,
			factory:    e.factory,
			factoryKey: e.factoryKey,
			resolved:   e.resolved,
		})
		e.mu.Unlock()

		return true
	})

	return out
}

// DescribeKey implements Provider.
func (p *FactoryProvider) DescribeKey(key Key) (KeyInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.lookup(key)
	if !ok {
		return KeyInfo{}, false
	}

	info := KeyInfo{Label: keyLabel(key), Scope: e.scope}
	if e.factoryKey != nil {
		info.DependsOn = []Key{e.factoryKey}
	}

	return info, true
}
