package alembic

import "errors"

var errNilResolver = errors.New("link resolver cannot be nil")

// LinkProvider maps keys to other keys: static permanent aliases, and
// dynamic links whose target is recomputed by a resolver function on every
// resolution until the link is promoted with Permanent. Promotion freezes the
// last (or next) resolved target into a static alias; it is an idempotent
// optimization, not a correctness requirement.
//
// Scope propagation follows the most restrictive component: a static alias
// adopts the target's scope, while an unpromoted dynamic link is always
// transient because its target may change between resolutions.
type LinkProvider struct {
	providerBase

	links *keyMap // key -> *linkEntry
}

type linkEntry struct {
	target    Key                 // static target; nil while the link is dynamic
	resolver  func() (Key, error) // dynamic target computation
	permanent bool
}

// NewLinkProvider creates an empty link provider. Attach it with
// Container.RegisterProvider before registering keys.
func NewLinkProvider() *LinkProvider {
	return &LinkProvider{links: newKeyMap()}
}

// Name implements Provider.
func (p *LinkProvider) Name() string { return "link" }

// RegisterAlias maps key permanently to target.
func (p *LinkProvider) RegisterAlias(key, target Key) error {
	return p.register(key, &linkEntry{target: target, permanent: true})
}

// RegisterDynamic maps key to a target computed by resolve. The function is
// re-evaluated on every resolution until Permanent is called, realizing
// switchable default implementations.
func (p *LinkProvider) RegisterDynamic(key Key, resolve func() (Key, error)) error {
	if resolve == nil {
		return ErrConstruction(key, errNilResolver)
	}
	return p.register(key, &linkEntry{resolver: resolve})
}

func (p *LinkProvider) register(key Key, e *linkEntry) error {
	reg, err := p.registrar()
	if err != nil {
		return err
	}

	if err := reg.Reserve(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.links.put(key, e)

	return nil
}

// Permanent promotes a dynamic link: the next resolution evaluates the
// resolver once and freezes the result as a static alias. Calling it again,
// or on an already static alias, is a no-op.
func (p *LinkProvider) Permanent(key Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.links.get(key)
	if !ok {
		return ErrNotFound(key)
	}

	v.(*linkEntry).permanent = true

	return nil
}

// Claims implements Provider.
func (p *LinkProvider) Claims(key Key) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.links.has(key)
}

// Resolve implements Provider. Once a key is claimed the link resolves or
// fails; it never falls through.
func (p *LinkProvider) Resolve(key Key, r Resolver) (Result, error) {
	p.mu.RLock()
	v, ok := p.links.get(key)
	p.mu.RUnlock()

	if !ok {
		return Result{}, ErrNotClaimed
	}

	e := v.(*linkEntry)

	target, static, err := p.targetOf(key, e)
	if err != nil {
		return Result{}, err
	}

	res, err := r.ResolveResult(target)
	if err != nil {
		return Result{}, err
	}

	if !static {
		// The target may differ next time; never cache.
		res.Scope = nil
	}

	return res, nil
}

// targetOf returns the current link target, promoting a permanent dynamic
// link to static on its first evaluation.
func (p *LinkProvider) targetOf(key Key, e *linkEntry) (target Key, static bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.target != nil {
		return e.target, true, nil
	}

	target, err = e.resolver()
	if err != nil {
		return nil, false, ErrConstruction(key, err)
	}

	if e.permanent {
		e.target = target
		e.resolver = nil
		return target, true, nil
	}

	return target, false, nil
}

// Clone implements Provider.
func (p *LinkProvider) Clone(keepCache bool) Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := NewLinkProvider()
	p.links.each(func(k Key, v any) bool {
		e := v.(*linkEntry)
		out.links.put(k, &linkEntry{target: e.target, resolver: e.resolver, permanent: e.permanent})
		return true
	})

	return out
}

// DescribeKey implements Provider. Dynamic links cannot name their target
// without running the resolver, so they show as anonymous leaf nodes.
func (p *LinkProvider) DescribeKey(key Key) (KeyInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, ok := p.links.get(key)
	if !ok {
		return KeyInfo{}, false
	}

	e := v.(*linkEntry)
	if e.target == nil {
		return KeyInfo{Label: keyLabel(key), Anonymous: true}, true
	}

	return KeyInfo{Label: keyLabel(key), InheritsScope: true, DependsOn: []Key{e.target}}, true
}
