package alembic

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/go-utils/errs"
)

func TestRegisterFactory_NilFactory(t *testing.T) {
	_, fp := newTestContainer(t)

	err := fp.RegisterFactory("db", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}

func TestRegisterFactory_Duplicate(t *testing.T) {
	_, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterValue("db", "first"))

	err := fp.RegisterValue("db", "second")

	assert.ErrorIs(t, err, ErrDuplicate("db"))
}

func TestRegisterFactory_DuplicateKeepsFirst(t *testing.T) {
	c, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterValue("db", "first"))
	require.Error(t, fp.RegisterValue("db", "second"))

	val, err := c.Resolve("db")
	require.NoError(t, err)
	assert.Equal(t, "first", val)
}

func TestRegisterFactory_CrossProviderDuplicate(t *testing.T) {
	c, fp := newTestContainer(t)
	lp := NewLinkProvider()
	require.NoError(t, c.RegisterProvider(lp))

	require.NoError(t, fp.RegisterValue("db", "x"))

	err := lp.RegisterAlias("db", "other")

	assert.ErrorIs(t, err, ErrDuplicate("db"))
}

func TestRegisterValue(t *testing.T) {
	c, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterValue("config", map[string]string{"env": "test"}))

	val, err := c.Resolve("config")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"env": "test"}, val)
}

func TestRegisterFactory_StructKey(t *testing.T) {
	type dbKey struct{ name string }

	c, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterValue(dbKey{name: "primary"}, "primary-conn"))
	require.NoError(t, fp.RegisterValue(dbKey{name: "replica"}, "replica-conn"))

	val, err := c.Resolve(dbKey{name: "replica"})
	require.NoError(t, err)
	assert.Equal(t, "replica-conn", val)
}

func TestRegisterFactoryKey_LazyConstructor(t *testing.T) {
	c, fp := newTestContainer(t)

	var ctorBuilds, productBuilds int32
	err := fp.RegisterFactory("ctor", func(Resolver, *CallArgs) (any, error) {
		atomic.AddInt32(&ctorBuilds, 1)

		return Factory(func(Resolver, *CallArgs) (any, error) {
			atomic.AddInt32(&productBuilds, 1)

			return new(struct{}), nil
		}), nil
	})
	require.NoError(t, err)

	require.NoError(t, fp.RegisterFactoryKey("svc", "ctor", AsTransient()))

	// The constructor dependency stays untouched until first use.
	assert.Equal(t, int32(0), ctorBuilds)

	_, err = c.Resolve("svc")
	require.NoError(t, err)

	_, err = c.Resolve("svc")
	require.NoError(t, err)

	assert.Equal(t, int32(1), ctorBuilds)
	assert.Equal(t, int32(2), productBuilds)
}

func TestRegisterFactoryKey_PlainFuncShape(t *testing.T) {
	c, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterValue("ctor", func() (any, error) { return "built", nil }))
	require.NoError(t, fp.RegisterFactoryKey("svc", "ctor"))

	val, err := c.Resolve("svc")
	require.NoError(t, err)
	assert.Equal(t, "built", val)
}

func TestRegisterFactoryKey_BadConstructor(t *testing.T) {
	c, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterValue("ctor", "not a function"))
	require.NoError(t, fp.RegisterFactoryKey("svc", "ctor"))

	_, err := c.Resolve("svc")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "constructor")
}

func TestRegisterFactoryKey_MissingConstructor(t *testing.T) {
	c, fp := newTestContainer(t)

	require.NoError(t, fp.RegisterFactoryKey("svc", "ctor"))

	_, err := c.Resolve("svc")

	assert.ErrorIs(t, err, ErrNotFound("ctor"))
}

func TestFactory_ParameterizedArgs(t *testing.T) {
	c, fp := newTestContainer(t)

	var count int32
	err := fp.RegisterFactory("greeting", func(_ Resolver, args *CallArgs) (any, error) {
		atomic.AddInt32(&count, 1)

		return "hello " + args.Args[0].(string), nil
	})
	require.NoError(t, err)

	val, err := c.Resolve(Parameterized("greeting", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "hello alice", val)

	// Same argument set, even through a fresh key instance, hits the cache.
	_, err = c.Resolve(Parameterized("greeting", "alice"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)

	val, err = c.Resolve(Parameterized("greeting", "bob"))
	require.NoError(t, err)
	assert.Equal(t, "hello bob", val)
	assert.Equal(t, int32(2), count)
}

func TestFactory_ParameterizedKwargs(t *testing.T) {
	c, fp := newTestContainer(t)

	err := fp.RegisterFactory("conn", func(_ Resolver, args *CallArgs) (any, error) {
		return args.Kwargs["host"], nil
	})
	require.NoError(t, err)

	val, err := c.Resolve(ParameterizedKV("conn", map[string]any{"host": "db1"}))
	require.NoError(t, err)
	assert.Equal(t, "db1", val)
}

func TestFactory_BareKeyGetsNilArgs(t *testing.T) {
	c, fp := newTestContainer(t)

	err := fp.RegisterFactory("svc", func(_ Resolver, args *CallArgs) (any, error) {
		assert.Nil(t, args)

		return "ok", nil
	})
	require.NoError(t, err)

	_, err = c.Resolve("svc")
	require.NoError(t, err)
}

func TestFactory_NestedErrorPropagates(t *testing.T) {
	c, fp := newTestContainer(t)
	expectedErr := errors.New("inner failure")

	require.NoError(t, fp.RegisterFactory("inner", func(Resolver, *CallArgs) (any, error) {
		return nil, expectedErr
	}))
	require.NoError(t, fp.RegisterFactory("outer", func(r Resolver, _ *CallArgs) (any, error) {
		return r.Resolve("inner")
	}))

	_, err := c.Resolve("outer")

	require.Error(t, err)

	var depErr *errs.Error
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "outer", depErr.GetContext()["key"])
}
