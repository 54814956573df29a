package alembic

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

var errConstructorPanic = errors.New("constructor panicked")

// containerImpl implements Container.
//
// Locking model: mu guards the provider list, the ownership index and the
// freeze flag (registration-time state). cacheMu guards the value caches and
// the in-flight construction gate. No lock is held while a user constructor
// runs: at-most-once singleton construction is enforced by registering an
// in-flight record per key under cacheMu and making concurrent resolvers of
// the same key wait on it.
type containerImpl struct {
	mu        sync.RWMutex
	providers []Provider
	owners    *keyMap // key -> owning Provider (duplicate index + describe)
	frozen    bool

	cacheMu    sync.RWMutex
	singletons *keyMap // key -> value, append-only
	scoped     *keyMap // key -> scopedEntry, generation-stamped
	inflight   *keyMap // key -> *inflightBuild

	scopes     *scopeRegistry
	middleware *middlewareChain
	logger     *zap.Logger

	// sandbox state, set by Clone
	sandbox   bool
	sandboxID string
	overrides *overrideSet
}

type scopedEntry struct {
	scope *Scope
	gen   uint64
	value any
}

// inflightBuild is the construction gate for one key. The building resolver
// closes done after publishing; waiters then re-read the caches.
type inflightBuild struct {
	done  chan struct{}
	err   error
	value any
}

func newContainerImpl(opts ...Option) *containerImpl {
	c := &containerImpl{
		owners:     newKeyMap(),
		singletons: newKeyMap(),
		scoped:     newKeyMap(),
		inflight:   newKeyMap(),
		scopes:     newScopeRegistry(),
		middleware: newMiddlewareChain(),
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.middleware.add(&loggingMiddleware{logger: c.logger})

	return c
}

// RegisterProvider appends p to the resolution chain and binds it to this
// container's registrar so its register methods go through the duplicate and
// freeze checks.
func (c *containerImpl) RegisterProvider(p Provider) error {
	c.mu.Lock()

	if c.frozen {
		c.mu.Unlock()
		return ErrFrozen
	}

	c.providers = append(c.providers, p)
	position := len(c.providers) - 1
	c.mu.Unlock()

	// Bind outside the container lock: providers hold their own lock while
	// registering keys through the registrar.
	if b, ok := p.(Binder); ok {
		b.Bind(&Registrar{c: c, p: p})
	}

	c.logger.Debug("provider registered",
		zap.String("provider", p.Name()),
		zap.Int("position", position),
	)

	return nil
}

// reserveKey claims key for p. Called by the Registrar.
func (c *containerImpl) reserveKey(key Key, p Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrFrozen
	}

	if _, taken := c.owners.putIfAbsent(key, p); taken {
		return ErrDuplicate(key)
	}

	c.logger.Debug("dependency registered",
		zap.String("key", keyLabel(key)),
		zap.String("provider", p.Name()),
	)

	return nil
}

// checkMutable is the freeze gate for register methods that do not reserve
// a new key.
func (c *containerImpl) checkMutable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.frozen {
		return ErrFrozen
	}

	return nil
}

// Freeze forbids further registration. Idempotent.
func (c *containerImpl) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return
	}

	c.frozen = true
	c.logger.Debug("container frozen", zap.Int("providers", len(c.providers)))
}

// Frozen reports whether Freeze has been called.
func (c *containerImpl) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.frozen
}

// Has reports whether any provider claims the key.
func (c *containerImpl) Has(key Key) bool {
	if c.overrides != nil && c.overrides.has(key) {
		return true
	}

	for _, p := range c.snapshotProviders() {
		if p.Claims(key) {
			return true
		}
	}

	return false
}

// Providers returns the registered provider names in order.
func (c *containerImpl) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}

	return names
}

// Use appends middleware around Resolve calls.
func (c *containerImpl) Use(m Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware.add(m)
}

// NewScope creates a named invalidation scope.
func (c *containerImpl) NewScope(name string) (*Scope, error) {
	c.mu.RLock()
	frozen := c.frozen
	c.mu.RUnlock()

	if frozen {
		return nil, ErrFrozen
	}

	s := c.scopes.newScope(name)
	c.logger.Debug("scope created", zap.String("scope", s.Name()))

	return s, nil
}

// ResetScope bumps the scope's generation.
func (c *containerImpl) ResetScope(s *Scope) error {
	if err := c.scopes.reset(s); err != nil {
		return err
	}

	c.logger.Debug("scope reset", zap.String("scope", s.Name()))

	return nil
}

// Resolve returns the value for key, constructing it if needed.
func (c *containerImpl) Resolve(key Key) (any, error) {
	if err := c.middleware.beforeResolve(key); err != nil {
		return nil, err
	}

	s := &session{c: c, stack: newResolveStack()}
	res, err := s.resolve(key)

	if mwErr := c.middleware.afterResolve(key, res.Value, err); mwErr != nil {
		return nil, mwErr
	}

	if err != nil {
		return nil, err
	}

	return res.Value, nil
}

func (c *containerImpl) snapshotProviders() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Provider(nil), c.providers...)
}

// lookupCaches checks the singleton cache and the generation-stamped scoped
// cache. Callers hold cacheMu (read or write).
func (c *containerImpl) lookupCaches(key Key) (Result, bool) {
	if v, ok := c.singletons.get(key); ok {
		return Result{Value: v, Scope: ScopeSingleton}, true
	}

	if v, ok := c.scoped.get(key); ok {
		e := v.(scopedEntry)
		if gen, known := c.scopes.generation(e.scope); known && gen == e.gen {
			return Result{Value: e.value, Scope: e.scope}, true
		}
	}

	return Result{}, false
}

// publish caches res for key per its scope. Callers hold cacheMu.
func (c *containerImpl) publish(key Key, res Result) Result {
	switch {
	case res.Scope == nil:
		// Transient: never cached.
	case res.Scope.singleton:
		// Append-only: first publication wins, which keeps value identity
		// stable even if a racing path slipped through.
		v, _ := c.singletons.putIfAbsent(key, res.Value)
		res.Value = v
	default:
		gen, known := c.scopes.generation(res.Scope)
		if known {
			c.scoped.put(key, scopedEntry{scope: res.Scope, gen: gen, value: res.Value})
		}
	}

	return res
}

// session is the per-logical-call resolution state: one cycle stack threaded
// through every nested provider resolution of a single top-level Resolve.
type session struct {
	c     *containerImpl
	stack *resolveStack
}

// Resolve implements Resolver.
func (s *session) Resolve(key Key) (any, error) {
	res, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	return res.Value, nil
}

// ResolveResult implements Resolver.
func (s *session) ResolveResult(key Key) (Result, error) {
	return s.resolve(key)
}

// Container implements Resolver.
func (s *session) Container() Container { return s.c }

// resolve is the core resolution algorithm.
func (s *session) resolve(key Key) (Result, error) {
	c := s.c

	// Fast path: published caches, no construction gate involved.
	c.cacheMu.RLock()
	res, hit := c.lookupCaches(key)
	c.cacheMu.RUnlock()

	if hit {
		return res, nil
	}

	// Sandbox value overrides shadow providers and parent caches.
	if c.overrides != nil {
		if v, ok := c.overrides.value(key); ok {
			return Result{Value: v, Scope: ScopeSingleton}, nil
		}
	}

	if !s.stack.enter(key) {
		return Result{}, ErrCycle(s.stack.trace(key))
	}
	defer s.stack.leave()

	for {
		c.cacheMu.Lock()

		if res, hit := c.lookupCaches(key); hit {
			c.cacheMu.Unlock()
			return res, nil
		}

		gate, waiting := c.inflight.get(key)
		if !waiting {
			build := &inflightBuild{done: make(chan struct{})}
			c.inflight.put(key, build)
			c.cacheMu.Unlock()

			return s.construct(key, build)
		}

		c.cacheMu.Unlock()

		// Another resolver is constructing this key; wait for publication.
		build := gate.(*inflightBuild)
		<-build.done

		if build.err != nil {
			return Result{}, build.err
		}

		// Singleton and scoped results are in the cache now; transient
		// results are not shared, so loop and construct our own.
	}
}

// construct runs the provider chain for key and publishes the result,
// releasing the in-flight gate on every exit path. A panicking constructor
// must still release the gate, or every later resolve of this key would block
// forever; the panic itself propagates to the caller, waiters get a
// construction error.
func (s *session) construct(key Key, build *inflightBuild) (res Result, err error) {
	completed := false

	defer func() {
		if !completed {
			err = ErrConstruction(key, errConstructorPanic)
		}

		s.c.cacheMu.Lock()
		if err == nil {
			res = s.c.publish(key, res)
		}
		s.c.inflight.delete(key)
		s.c.cacheMu.Unlock()

		build.value, build.err = res.Value, err
		close(build.done)
	}()

	res, err = s.runProviders(key)
	completed = true

	return res, err
}

// runProviders consults providers in strict registration order; the first
// that claims the key resolves it. Sandbox factory overrides win over every
// provider.
func (s *session) runProviders(key Key) (Result, error) {
	c := s.c

	if c.overrides != nil {
		if res, ok, err := c.overrides.build(key, s); ok {
			return res, err
		}
	}

	for _, p := range c.snapshotProviders() {
		if !p.Claims(key) {
			continue
		}

		res, err := p.Resolve(key, s)
		if err != nil {
			if isNotClaimed(err) {
				// Deliberate fallthrough (getter namespaces); providers with
				// exclusive registration never take this path.
				continue
			}

			return Result{}, err
		}

		return res, nil
	}

	return Result{}, ErrNotFound(key)
}
