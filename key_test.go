package alembic

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysEqual_Strings(t *testing.T) {
	assert.True(t, keysEqual("db", "db"))
	assert.False(t, keysEqual("db", "cache"))
	assert.False(t, keysEqual("db", 42))
}

func TestKeysEqual_Structs(t *testing.T) {
	type k struct{ name string }

	assert.True(t, keysEqual(k{"a"}, k{"a"}))
	assert.False(t, keysEqual(k{"a"}, k{"b"}))
}

func TestKeysEqual_Uncomparable(t *testing.T) {
	type k struct{ parts []string }

	a := k{parts: []string{"x", "y"}}
	b := k{parts: []string{"x", "y"}}
	c := k{parts: []string{"x", "z"}}

	assert.True(t, keysEqual(a, b))
	assert.False(t, keysEqual(a, c))
}

func TestParameterized_Equality(t *testing.T) {
	a := Parameterized("svc", 1, "x")
	b := Parameterized("svc", 1, "x")
	c := Parameterized("svc", 2, "x")

	assert.True(t, keysEqual(a, b))
	assert.False(t, keysEqual(a, c))
	assert.False(t, keysEqual(a, "svc"))
	assert.Equal(t, hashOf(a), hashOf(b))
}

func TestParameterized_KwargsEquality(t *testing.T) {
	a := ParameterizedKV("svc", map[string]any{"host": "db1"})
	b := ParameterizedKV("svc", map[string]any{"host": "db1"})
	c := ParameterizedKV("svc", map[string]any{"host": "db2"})

	assert.True(t, keysEqual(a, b))
	assert.False(t, keysEqual(a, c))
}

func TestParameterized_DegradedHashNeverPanics(t *testing.T) {
	ch := make(chan int)

	assert.NotPanics(t, func() {
		k := Parameterized("svc", ch)
		assert.True(t, k.Degraded())
	})
}

func TestParameterized_DegradedStillExactEquality(t *testing.T) {
	ch1 := make(chan int)
	ch2 := make(chan int)

	a := Parameterized("svc", ch1)
	b := Parameterized("svc", ch1)
	c := Parameterized("svc", ch2)

	// Degraded hashing collapses to the base key; equality stays exact.
	require.True(t, a.Degraded())
	assert.Equal(t, hashOf(a), hashOf(b))
	assert.True(t, keysEqual(a, b))
	assert.False(t, keysEqual(a, c))
}

func TestParameterized_DegradedKeyResolvesAndCaches(t *testing.T) {
	c, fp := newTestContainer(t)

	var count int32
	err := fp.RegisterFactory("listener", func(_ Resolver, args *CallArgs) (any, error) {
		atomic.AddInt32(&count, 1)

		return args.Args[0], nil
	})
	require.NoError(t, err)

	events := make(chan int)

	val, err := c.Resolve(Parameterized("listener", events))
	require.NoError(t, err)
	assert.Equal(t, (chan int)(events), val)

	_, err = c.Resolve(Parameterized("listener", events))
	require.NoError(t, err)
	assert.Equal(t, int32(1), count)
}

func TestParamKey_String(t *testing.T) {
	assert.Equal(t, "svc(1, x)", Parameterized("svc", 1, "x").String())
	assert.Equal(t, "svc(a=1, b=2)",
		ParameterizedKV("svc", map[string]any{"b": 2, "a": 1}).String())
	assert.Equal(t, "svc(1, a=2)",
		ParameterizedKV("svc", map[string]any{"a": 2}, 1).String())
}

func TestKeyLabel(t *testing.T) {
	type named struct{ n int }

	assert.Equal(t, "db", keyLabel("db"))
	assert.Equal(t, "<nil>", keyLabel(nil))
	assert.Equal(t, "tagged:reports", keyLabel(Tagged{Tag: "reports"}))
	assert.Equal(t, "{7}", keyLabel(named{n: 7}))
}

func TestHashOf_NeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		hashOf("db")
		hashOf(42)
		hashOf(struct{ f func() }{f: func() {}})
		hashOf(make(chan int))
	})
}

func TestKeyMap_Basics(t *testing.T) {
	m := newKeyMap()

	m.put("a", 1)
	m.put("b", 2)
	assert.Equal(t, 2, m.len())

	v, ok := m.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.put("a", 10)
	v, _ = m.get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, m.len())

	m.delete("a")
	assert.False(t, m.has("a"))
	assert.Equal(t, 1, m.len())
}

func TestKeyMap_PutIfAbsent(t *testing.T) {
	m := newKeyMap()

	v, existed := m.putIfAbsent("a", 1)
	assert.False(t, existed)
	assert.Equal(t, 1, v)

	v, existed = m.putIfAbsent("a", 2)
	assert.True(t, existed)
	assert.Equal(t, 1, v)
}

func TestKeyMap_CompositeKeys(t *testing.T) {
	m := newKeyMap()

	m.put(Parameterized("svc", 1), "one")
	m.put(Parameterized("svc", 2), "two")

	v, ok := m.get(Parameterized("svc", 1))
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok = m.get(Parameterized("svc", 2))
	assert.True(t, ok)
	assert.Equal(t, "two", v)
}

func TestKeyMap_CloneIsIndependent(t *testing.T) {
	m := newKeyMap()
	m.put("a", 1)

	cp := m.clone()
	cp.put("b", 2)
	cp.put("a", 10)

	assert.Equal(t, 1, m.len())
	v, _ := m.get("a")
	assert.Equal(t, 1, v)
}
