package alembic

import (
	"sort"
	"strings"
)

// GetterFunc fetches a value for a bare name within a namespace. Returning
// ErrKeyMiss (or an error wrapping it) signals "not here", falling through
// to the next getter by priority.
type GetterFunc func(name string) (any, error)

// GetterProvider maps "namespace:name" string keys to one of several
// competing getter functions registered for the namespace, consulted in
// descending priority order. When every candidate misses, the provider
// reports the key as not claimed so later providers can still serve it;
// this is the one deliberate fallthrough in the system.
type GetterProvider struct {
	providerBase

	namespaces map[string][]nsGetter // sorted by descending priority
}

type nsGetter struct {
	priority int
	scope    *Scope
	fn       GetterFunc
}

// nsKey marks namespace ownership in the container's duplicate index.
type nsKey struct {
	namespace string
}

func (k nsKey) String() string { return "namespace:" + k.namespace }

// NewGetterProvider creates an empty getter provider. Attach it with
// Container.RegisterProvider before registering getters.
func NewGetterProvider() *GetterProvider {
	return &GetterProvider{namespaces: make(map[string][]nsGetter)}
}

// Name implements Provider.
func (p *GetterProvider) Name() string { return "getter" }

// RegisterGetter adds fn under namespace with the given priority. Higher
// priorities are tried first. Duplicate priorities within a namespace are
// rejected. The first getter of a namespace reserves it against other
// providers.
func (p *GetterProvider) RegisterGetter(namespace string, priority int, fn GetterFunc, opts ...BindOption) error {
	if fn == nil {
		return ErrConstruction(nsKey{namespace}, errNilFactory)
	}

	reg, err := p.registrar()
	if err != nil {
		return err
	}

	scope := mergeBindOptions(opts)
	if err := reg.ValidateScope(scope); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	getters, known := p.namespaces[namespace]
	for _, g := range getters {
		if g.priority == priority {
			return ErrDuplicate(nsKey{namespace})
		}
	}

	if !known {
		if err := reg.Reserve(nsKey{namespace}); err != nil {
			return err
		}
	} else if err := reg.CheckMutable(); err != nil {
		return err
	}

	getters = append(getters, nsGetter{priority: priority, scope: scope, fn: fn})
	sort.SliceStable(getters, func(i, j int) bool { return getters[i].priority > getters[j].priority })
	p.namespaces[namespace] = getters

	return nil
}

// splitNamespaced splits "namespace:name" keys; ok is false for anything
// else.
func splitNamespaced(key Key) (namespace, name string, ok bool) {
	s, isString := key.(string)
	if !isString {
		return "", "", false
	}

	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", false
	}

	return s[:idx], s[idx+1:], true
}

// Claims implements Provider. A key is claimed when its namespace has at
// least one getter; whether any candidate actually has the name is only
// known at resolution time.
func (p *GetterProvider) Claims(key Key) bool {
	namespace, _, ok := splitNamespaced(key)
	if !ok {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok = p.namespaces[namespace]

	return ok
}

// Resolve implements Provider.
func (p *GetterProvider) Resolve(key Key, r Resolver) (Result, error) {
	namespace, name, ok := splitNamespaced(key)
	if !ok {
		return Result{}, ErrNotClaimed
	}

	p.mu.RLock()
	getters := append([]nsGetter(nil), p.namespaces[namespace]...)
	p.mu.RUnlock()

	for _, g := range getters {
		value, err := g.fn(name)
		if err != nil {
			if isKeyMiss(err) {
				continue
			}

			return Result{}, ErrConstruction(key, err)
		}

		return Result{Value: value, Scope: g.scope}, nil
	}

	// Every candidate missed: let later providers have the key.
	return Result{}, ErrNotClaimed
}

// Clone implements Provider.
func (p *GetterProvider) Clone(keepCache bool) Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := NewGetterProvider()
	for namespace, getters := range p.namespaces {
		out.namespaces[namespace] = append([]nsGetter(nil), getters...)
	}

	return out
}

// DescribeKey implements Provider. Which getter would win is unknown without
// calling them, so namespaced keys are marked ambiguous.
func (p *GetterProvider) DescribeKey(key Key) (KeyInfo, bool) {
	namespace, _, ok := splitNamespaced(key)
	if !ok {
		return KeyInfo{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	getters, known := p.namespaces[namespace]
	if !known {
		return KeyInfo{}, false
	}

	scope := ScopeSingleton
	if len(getters) > 0 {
		scope = getters[0].scope
	}

	return KeyInfo{Label: keyLabel(key), Scope: scope, Ambiguous: len(getters) > 1}, true
}
