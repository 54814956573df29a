package alembic

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Tagged is the dependency key for the collection of members registered
// under a tag. Resolving Tagged{Tag: "reports"} yields a *TagView.
type Tagged struct {
	Tag string
}

func (t Tagged) String() string { return "tagged:" + t.Tag }

// TaggedMember is one (dependency key, metadata) entry of a tag collection,
// in registration order.
type TaggedMember struct {
	Key      Key
	Metadata map[string]string
}

// TagProvider maps tag identifiers to the ordered set of dependency keys
// registered under them. Member dependencies belong to other providers and
// are only resolved when a view is iterated.
type TagProvider struct {
	providerBase

	tags map[string][]TaggedMember
}

// NewTagProvider creates an empty tag provider. Attach it with
// Container.RegisterProvider before registering members.
func NewTagProvider() *TagProvider {
	return &TagProvider{tags: make(map[string][]TaggedMember)}
}

// Name implements Provider.
func (p *TagProvider) Name() string { return "tag" }

// RegisterTagged appends key to the collection under tag, with optional
// metadata. The same key cannot be added to one tag twice. The first member
// of a tag reserves the Tagged key against other providers.
func (p *TagProvider) RegisterTagged(tag string, key Key, metadata map[string]string) error {
	reg, err := p.registrar()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	members, known := p.tags[tag]
	for _, m := range members {
		if keysEqual(m.Key, key) {
			return ErrDuplicate(key)
		}
	}

	if !known {
		if err := reg.Reserve(Tagged{Tag: tag}); err != nil {
			return err
		}
	} else if err := reg.CheckMutable(); err != nil {
		return err
	}

	p.tags[tag] = append(members, TaggedMember{Key: key, Metadata: metadata})

	return nil
}

// Claims implements Provider.
func (p *TagProvider) Claims(key Key) bool {
	t, ok := key.(Tagged)
	if !ok {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok = p.tags[t.Tag]

	return ok
}

// Resolve implements Provider. Views are singleton-scoped: the collection's
// membership is fixed at freeze time, and the view itself memoizes member
// values.
func (p *TagProvider) Resolve(key Key, r Resolver) (Result, error) {
	t, ok := key.(Tagged)
	if !ok {
		return Result{}, ErrNotClaimed
	}

	p.mu.RLock()
	members, known := p.tags[t.Tag]
	snapshot := append([]TaggedMember(nil), members...)
	p.mu.RUnlock()

	if !known {
		return Result{}, ErrNotClaimed
	}

	// Bind to the container, not the per-call resolver: member resolution
	// happens later, possibly from several goroutines at once.
	view := &TagView{tag: t.Tag, members: snapshot, resolve: r.Container().Resolve}

	return Result{Value: view, Scope: ScopeSingleton}, nil
}

// Clone implements Provider.
func (p *TagProvider) Clone(keepCache bool) Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := NewTagProvider()
	for tag, members := range p.tags {
		out.tags[tag] = append([]TaggedMember(nil), members...)
	}

	return out
}

// DescribeKey implements Provider.
func (p *TagProvider) DescribeKey(key Key) (KeyInfo, bool) {
	t, ok := key.(Tagged)
	if !ok {
		return KeyInfo{}, false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	members, known := p.tags[t.Tag]
	if !known {
		return KeyInfo{}, false
	}

	deps := make([]Key, len(members))
	for i, m := range members {
		deps[i] = m.Key
	}

	return KeyInfo{Label: t.String(), Scope: ScopeSingleton, DependsOn: deps}, true
}

// TagView is the lazily-materializing, thread-safe view over a tag
// collection. Members resolve only when accessed, each at most once;
// successful values are cached and visible in stable index order across
// concurrent iterators (concurrent first accesses of one member collapse
// into a single resolution).
type TagView struct {
	tag     string
	members []TaggedMember
	resolve func(Key) (any, error)

	flight singleflight.Group
	mu     sync.RWMutex
	values map[int]any
}

// Tag returns the tag identifier of the view.
func (v *TagView) Tag() string { return v.tag }

// Len returns the number of members.
func (v *TagView) Len() int { return len(v.members) }

// Members returns the (key, metadata) entries in registration order, without
// resolving anything.
func (v *TagView) Members() []TaggedMember {
	return append([]TaggedMember(nil), v.members...)
}

// Value resolves and returns the member at index i.
func (v *TagView) Value(i int) (any, error) {
	v.mu.RLock()
	cached, ok := v.values[i]
	v.mu.RUnlock()

	if ok {
		return cached, nil
	}

	value, err, _ := v.flight.Do(strconv.Itoa(i), func() (any, error) {
		v.mu.RLock()
		cached, ok := v.values[i]
		v.mu.RUnlock()

		if ok {
			return cached, nil
		}

		resolved, err := v.resolve(v.members[i].Key)
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		if v.values == nil {
			v.values = make(map[int]any)
		}
		v.values[i] = resolved
		v.mu.Unlock()

		return resolved, nil
	})

	return value, err
}

// Values resolves every member and returns the values in index order.
func (v *TagView) Values() ([]any, error) {
	out := make([]any, len(v.members))
	for i := range v.members {
		value, err := v.Value(i)
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

// Each iterates members in index order, resolving each value on the way.
// Iteration stops at the first error.
func (v *TagView) Each(fn func(i int, m TaggedMember, value any) error) error {
	for i, m := range v.members {
		value, err := v.Value(i)
		if err != nil {
			return err
		}
		if err := fn(i, m, value); err != nil {
			return err
		}
	}
	return nil
}
