package alembic

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone_FrozenByDefault(t *testing.T) {
	c, _ := newTestContainer(t)

	clone, err := c.Clone()
	require.NoError(t, err)

	assert.True(t, clone.Frozen())
	assert.False(t, c.Frozen())
}

func TestClone_Unfrozen(t *testing.T) {
	c, _ := newTestContainer(t)

	clone, err := c.Clone(Unfrozen())
	require.NoError(t, err)

	assert.False(t, clone.Frozen())
}

func TestClone_CarriesRegistrations(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "conn"))

	clone, err := c.Clone()
	require.NoError(t, err)

	val, err := clone.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "conn", val)
}

func TestClone_FreshSingletonsByDefault(t *testing.T) {
	c, fp := newTestContainer(t)

	var count int32
	err := fp.RegisterFactory("conn", func(Resolver, *CallArgs) (any, error) {
		atomic.AddInt32(&count, 1)

		return &struct{ n int }{}, nil
	})
	require.NoError(t, err)

	parentVal, err := c.Resolve("conn")
	require.NoError(t, err)

	clone, err := c.Clone()
	require.NoError(t, err)

	cloneVal, err := clone.Resolve("conn")
	require.NoError(t, err)

	assert.NotSame(t, parentVal, cloneVal)
	assert.Equal(t, int32(2), count)
}

func TestClone_KeepSingletons(t *testing.T) {
	c, fp := newTestContainer(t)

	var count int32
	err := fp.RegisterFactory("conn", func(Resolver, *CallArgs) (any, error) {
		atomic.AddInt32(&count, 1)

		return &struct{ n int }{}, nil
	})
	require.NoError(t, err)

	parentVal, err := c.Resolve("conn")
	require.NoError(t, err)

	clone, err := c.Clone(KeepSingletons())
	require.NoError(t, err)

	cloneVal, err := clone.Resolve("conn")
	require.NoError(t, err)

	assert.Same(t, parentVal, cloneVal)
	assert.Equal(t, int32(1), count)
}

func TestClone_NewRegistrationsStayLocal(t *testing.T) {
	c, _ := newTestContainer(t)

	clone, err := c.Clone(Unfrozen())
	require.NoError(t, err)

	extra := NewFactoryProvider()
	require.NoError(t, clone.RegisterProvider(extra))
	require.NoError(t, extra.RegisterValue("extra", "only here"))

	assert.True(t, clone.Has("extra"))
	assert.False(t, c.Has("extra"))
}

func TestClone_ParentResolutionUnaffected(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	clone, err := c.Clone()
	require.NoError(t, err)
	require.NoError(t, clone.OverrideSingleton("db", "fake"))

	cloneVal, err := clone.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "fake", cloneVal)

	parentVal, err := c.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "real", parentVal)
}

func TestOverrideSingleton_NonSandbox(t *testing.T) {
	c, _ := newTestContainer(t)

	err := c.OverrideSingleton("db", "fake")

	assert.ErrorIs(t, err, ErrSandboxOnly)
}

func TestOverrideFactory_NonSandbox(t *testing.T) {
	c, _ := newTestContainer(t)

	err := c.OverrideFactory("db", Supply("fake"))

	assert.ErrorIs(t, err, ErrSandboxOnly)
}

func TestOverrideFactory_NilFactory(t *testing.T) {
	c, _ := newTestContainer(t)

	clone, err := c.Clone()
	require.NoError(t, err)

	err = clone.OverrideFactory("db", nil)

	assert.Error(t, err)
}

func TestOverrideSingleton_ShadowsKeptSingleton(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	_, err := c.Resolve("db")
	require.NoError(t, err)

	clone, err := c.Clone(KeepSingletons())
	require.NoError(t, err)
	require.NoError(t, clone.OverrideSingleton("db", "fake"))

	val, err := clone.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "fake", val)
}

func TestOverrideSingleton_BypassesFreezeAndDuplicates(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))
	c.Freeze()

	clone, err := c.Clone()
	require.NoError(t, err)

	// Clone is frozen, overrides still work and replace silently.
	require.NoError(t, clone.OverrideSingleton("db", "fake1"))
	require.NoError(t, clone.OverrideSingleton("db", "fake2"))

	val, err := clone.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "fake2", val)
}

func TestOverride_LastWriteWinsAcrossKinds(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	clone, err := c.Clone()
	require.NoError(t, err)

	require.NoError(t, clone.OverrideFactory("db", Supply("from-factory")))
	require.NoError(t, clone.OverrideSingleton("db", "from-value"))

	val, err := clone.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "from-value", val)
}

func TestOverrideFactory_DefaultSingleton(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	clone, err := c.Clone()
	require.NoError(t, err)

	var count int32
	err = clone.OverrideFactory("db", func(Resolver, *CallArgs) (any, error) {
		atomic.AddInt32(&count, 1)

		return "fake", nil
	})
	require.NoError(t, err)

	_, err = clone.Resolve("db")
	require.NoError(t, err)
	_, err = clone.Resolve("db")
	require.NoError(t, err)

	assert.Equal(t, int32(1), count)
}

func TestOverrideFactory_Transient(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	clone, err := c.Clone()
	require.NoError(t, err)

	var count int32
	err = clone.OverrideFactory("db", func(Resolver, *CallArgs) (any, error) {
		return atomic.AddInt32(&count, 1), nil
	}, AsTransient())
	require.NoError(t, err)

	val1, err := clone.Resolve("db")
	require.NoError(t, err)
	val2, err := clone.Resolve("db")
	require.NoError(t, err)

	assert.NotEqual(t, val1, val2)
}

func TestOverrideSingleton_UnregisteredKey(t *testing.T) {
	c, _ := newTestContainer(t)

	clone, err := c.Clone()
	require.NoError(t, err)
	require.NoError(t, clone.OverrideSingleton("only-in-test", "value"))

	assert.True(t, clone.Has("only-in-test"))

	val, err := clone.Resolve("only-in-test")
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}

func TestClone_Nested(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	child, err := c.Clone()
	require.NoError(t, err)
	require.NoError(t, child.OverrideSingleton("db", "child"))

	grandchild, err := child.Clone()
	require.NoError(t, err)

	// The grandchild inherits the child's overrides.
	val, err := grandchild.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "child", val)

	require.NoError(t, grandchild.OverrideSingleton("db", "grandchild"))

	val, err = grandchild.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "grandchild", val)

	// Nothing leaks upward.
	val, err = child.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "child", val)

	val, err = c.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "real", val)
}

func TestClone_ScopeGenerationsIndependent(t *testing.T) {
	c, fp := newTestContainer(t)

	session, err := c.NewScope("session")
	require.NoError(t, err)

	var count int32
	require.NoError(t, fp.RegisterFactory("user", supplyCounted(&count, "alice"), InScope(session)))

	_, err = c.Resolve("user")
	require.NoError(t, err)

	clone, err := c.Clone()
	require.NoError(t, err)

	// Resetting through the clone uses the shared token but the clone's own
	// generation counter.
	require.NoError(t, clone.ResetScope(session))

	_, err = c.Resolve("user")
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)
}

func TestClone_PreservesMiddleware(t *testing.T) {
	c, fp := newTestContainer(t)
	require.NoError(t, fp.RegisterValue("db", "real"))

	var calls int32
	c.Use(&FuncMiddleware{
		BeforeResolveFunc: func(Key) error {
			atomic.AddInt32(&calls, 1)

			return nil
		},
	})

	clone, err := c.Clone()
	require.NoError(t, err)

	_, err = clone.Resolve("db")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
}
