package alembic

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clone produces an isolated container for a test sandbox. Providers hand
// over independent copies of their registration metadata, so registrations
// and overrides in the clone never reach the original. With KeepSingletons
// the already-materialized singleton values are carried over shared by
// reference; mutating those shared values is visible in the original.
// Clones nest: cloning a clone leaks nothing back to any ancestor.
func (c *containerImpl) Clone(opts ...CloneOption) (Container, error) {
	var merged cloneOptions
	for _, opt := range opts {
		opt(&merged)
	}

	out := &containerImpl{
		owners:     newKeyMap(),
		singletons: newKeyMap(),
		scoped:     newKeyMap(),
		inflight:   newKeyMap(),
		scopes:     c.scopes.clone(),
		logger:     c.logger,
		frozen:     !merged.unfrozen,
		sandbox:    true,
		sandboxID:  uuid.NewString(),
	}

	c.mu.RLock()
	providers := append([]Provider(nil), c.providers...)
	c.mu.RUnlock()

	for _, p := range providers {
		np := p.Clone(merged.keepSingletons)
		out.providers = append(out.providers, np)

		if b, ok := np.(Binder); ok {
			b.Bind(&Registrar{c: out, p: np})
		}
	}

	// Remap the ownership index onto the cloned providers by position.
	c.mu.RLock()
	c.owners.each(func(k Key, v any) bool {
		for i, p := range c.providers {
			if p == v.(Provider) {
				out.owners.put(k, out.providers[i])
				break
			}
		}
		return true
	})
	c.mu.RUnlock()

	c.cacheMu.RLock()
	if merged.keepSingletons {
		out.singletons = c.singletons.clone()
	}
	c.cacheMu.RUnlock()

	if c.overrides != nil {
		out.overrides = c.overrides.clone()
	} else {
		out.overrides = newOverrideSet()
	}

	out.middleware = c.middleware.clone()

	c.logger.Debug("container cloned",
		zap.String("sandbox", out.sandboxID),
		zap.Bool("keep_singletons", merged.keepSingletons),
		zap.Bool("frozen", out.frozen),
	)

	return out, nil
}

// OverrideSingleton replaces the value for key inside this sandbox. It
// bypasses duplicate-registration checks and the freeze flag; repeated
// overrides for the same key silently replace each other, last write wins.
func (c *containerImpl) OverrideSingleton(key Key, value any) error {
	if !c.sandbox {
		return ErrSandboxOnly
	}

	c.overrides.setValue(key, value)
	c.dropCached(key)

	c.logger.Debug("singleton overridden",
		zap.String("sandbox", c.sandboxID),
		zap.String("key", keyLabel(key)),
	)

	return nil
}

// OverrideFactory replaces the construction of key inside this sandbox,
// taking precedence over every provider. Last write wins.
func (c *containerImpl) OverrideFactory(key Key, fn Factory, opts ...BindOption) error {
	if !c.sandbox {
		return ErrSandboxOnly
	}

	if fn == nil {
		return ErrConstruction(key, errNilFactory)
	}

	c.overrides.setFactory(key, fn, mergeBindOptions(opts))
	c.dropCached(key)

	c.logger.Debug("factory overridden",
		zap.String("sandbox", c.sandboxID),
		zap.String("key", keyLabel(key)),
	)

	return nil
}

// dropCached evicts a key from the value caches so an override shadows any
// value carried over from the parent.
func (c *containerImpl) dropCached(key Key) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.singletons.delete(key)
	c.scoped.delete(key)
}

// overrideSet holds the sandbox-only replacements. Unlike providers it has
// no duplicate checks: entries replace silently.
type overrideSet struct {
	mu        sync.RWMutex
	values    *keyMap // key -> any
	factories *keyMap // key -> overrideFactory
}

type overrideFactory struct {
	fn    Factory
	scope *Scope
}

func newOverrideSet() *overrideSet {
	return &overrideSet{values: newKeyMap(), factories: newKeyMap()}
}

func (o *overrideSet) setValue(key Key, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.factories.delete(key)
	o.values.put(key, value)
}

func (o *overrideSet) setFactory(key Key, fn Factory, scope *Scope) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.values.delete(key)
	o.factories.put(key, overrideFactory{fn: fn, scope: scope})
}

func (o *overrideSet) has(key Key) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.values.has(key) || o.factories.has(key)
}

func (o *overrideSet) value(key Key) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.values.get(key)
}

// build constructs through a factory override. ok reports whether an
// override exists for the key.
func (o *overrideSet) build(key Key, r Resolver) (Result, bool, error) {
	o.mu.RLock()
	v, ok := o.factories.get(key)
	o.mu.RUnlock()

	if !ok {
		return Result{}, false, nil
	}

	of := v.(overrideFactory)

	var args *CallArgs
	if pk, isParam := key.(*ParamKey); isParam {
		args = pk.CallArgs()
	}

	value, err := of.fn(r, args)
	if err != nil {
		return Result{}, true, ErrConstruction(key, err)
	}

	return Result{Value: value, Scope: of.scope}, true, nil
}

func (o *overrideSet) clone() *overrideSet {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return &overrideSet{values: o.values.clone(), factories: o.factories.clone()}
}
