package alembic

import "fmt"

// CallFunc computes a value from the arguments carried by a parameterized
// key. args is nil when the bare key is resolved.
type CallFunc func(args *CallArgs) (any, error)

// LazyCallProvider maps parameterized call expressions (function + argument
// set) to their computed values. With the default singleton scope the
// container's cache guarantees each unique argument set is computed at most
// once; transient or named scopes recompute per the usual cache rules.
//
// Once a LazyCallProvider claims a key it resolves or fails; it never falls
// through.
type LazyCallProvider struct {
	providerBase

	calls *keyMap // base key -> *lazyCall
}

type lazyCall struct {
	fn    CallFunc
	scope *Scope
}

// NewLazyCallProvider creates an empty lazy-call provider. Attach it with
// Container.RegisterProvider before registering keys.
func NewLazyCallProvider() *LazyCallProvider {
	return &LazyCallProvider{calls: newKeyMap()}
}

// Name implements Provider.
func (p *LazyCallProvider) Name() string { return "lazy" }

// RegisterCall maps key to fn. Resolving Parameterized(key, args...) invokes
// fn with those arguments; resolving the bare key invokes it with nil args.
func (p *LazyCallProvider) RegisterCall(key Key, fn CallFunc, opts ...BindOption) error {
	if fn == nil {
		return ErrConstruction(key, fmt.Errorf("call function cannot be nil"))
	}

	reg, err := p.registrar()
	if err != nil {
		return err
	}

	scope := mergeBindOptions(opts)
	if err := reg.ValidateScope(scope); err != nil {
		return err
	}

	if err := reg.Reserve(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.put(key, &lazyCall{fn: fn, scope: scope})

	return nil
}

// Claims implements Provider. Parameterized keys are claimed when their base
// key is registered here.
func (p *LazyCallProvider) Claims(key Key) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.lookup(key)

	return ok
}

func (p *LazyCallProvider) lookup(key Key) (*lazyCall, bool) {
	if pk, ok := key.(*ParamKey); ok {
		key = pk.Base()
	}

	v, ok := p.calls.get(key)
	if !ok {
		return nil, false
	}

	return v.(*lazyCall), true
}

// Resolve implements Provider.
func (p *LazyCallProvider) Resolve(key Key, r Resolver) (Result, error) {
	p.mu.RLock()
	call, ok := p.lookup(key)
	p.mu.RUnlock()

	if !ok {
		return Result{}, ErrNotClaimed
	}

	var args *CallArgs
	if pk, isParam := key.(*ParamKey); isParam {
		args = pk.CallArgs()
	}

	value, err := call.fn(args)
	if err != nil {
		return Result{}, ErrConstruction(key, err)
	}

	return Result{Value: value, Scope: call.scope}, nil
}

// Clone implements Provider.
func (p *LazyCallProvider) Clone(keepCache bool) Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := NewLazyCallProvider()
	p.calls.each(func(k Key, v any) bool {
		out.calls.put(k, v)
		return true
	})

	return out
}

// DescribeKey implements Provider. Call expressions have no user-facing
// identity beyond the function, so they are marked anonymous.
func (p *LazyCallProvider) DescribeKey(key Key) (KeyInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	call, ok := p.lookup(key)
	if !ok {
		return KeyInfo{}, false
	}

	return KeyInfo{Label: keyLabel(key), Scope: call.scope, Anonymous: true}, true
}
