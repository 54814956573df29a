package alembic

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/hashstructure/v2"
)

// CallArgs carries the extra construction arguments of a parameterized key.
type CallArgs struct {
	Args   []any
	Kwargs map[string]any
}

// ParamKey is a composite key wrapping a base key with extra construction
// arguments. Two ParamKeys are equal when their bases and arguments are
// deeply equal. Hashing is precomputed at construction and never fails: when
// an argument is unhashable the hash degrades to the hashable parts (at
// minimum the base key) while equality stays exact.
type ParamKey struct {
	base     Key
	args     []any
	kwargs   map[string]any
	hash     uint64
	degraded bool
}

// Parameterized builds a composite key from base and positional arguments.
func Parameterized(base Key, args ...any) *ParamKey {
	return ParameterizedKV(base, nil, args...)
}

// ParameterizedKV builds a composite key from base, keyword arguments and
// positional arguments.
func ParameterizedKV(base Key, kwargs map[string]any, args ...any) *ParamKey {
	k := &ParamKey{base: base, args: args, kwargs: kwargs}
	k.hash, k.degraded = paramHash(base, args, kwargs)
	return k
}

// Base returns the wrapped base key.
func (k *ParamKey) Base() Key { return k.base }

// CallArgs returns the construction arguments carried by the key.
func (k *ParamKey) CallArgs() *CallArgs {
	return &CallArgs{Args: k.args, Kwargs: k.kwargs}
}

// Degraded reports whether hashing fell back to the hashable parts only.
func (k *ParamKey) Degraded() bool { return k.degraded }

func (k *ParamKey) String() string {
	var b strings.Builder
	b.WriteString(keyLabel(k.base))
	b.WriteByte('(')
	for i, a := range k.args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", a)
	}
	if len(k.kwargs) > 0 {
		names := make([]string, 0, len(k.kwargs))
		for n := range k.kwargs {
			names = append(names, n)
		}
		sort.Strings(names)
		for i, n := range names {
			if i > 0 || len(k.args) > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", n, k.kwargs[n])
		}
	}
	b.WriteByte(')')
	return b.String()
}

// paramSalt keeps a degraded ParamKey hash from colliding with the plain
// hash of its base key.
const paramSalt = 0x9e3779b97f4a7c15

// paramHash hashes the full composite, degrading to the base key alone when
// any component cannot be hashed. It never panics.
func paramHash(base Key, args []any, kwargs map[string]any) (h uint64, degraded bool) {
	defer func() {
		if recover() != nil {
			h = hashOf(base) ^ paramSalt
			degraded = true
		}
	}()

	full, err := hashstructure.Hash(struct {
		Base   any
		Args   []any
		Kwargs map[string]any
	}{base, args, kwargs}, hashstructure.FormatV2, nil)
	if err != nil {
		return hashOf(base) ^ paramSalt, true
	}

	return full, false
}

// hashOf returns a stable hash for any key. It never panics: values that
// cannot be structurally hashed degrade to a hash of their dynamic type.
func hashOf(k Key) (h uint64) {
	if pk, ok := k.(*ParamKey); ok {
		return pk.hash
	}

	if s, ok := k.(string); ok {
		return xxhash.Sum64String(s)
	}

	defer func() {
		if recover() != nil {
			h = xxhash.Sum64String(fmt.Sprintf("%T", k))
		}
	}()

	full, err := hashstructure.Hash(k, hashstructure.FormatV2, nil)
	if err != nil {
		return xxhash.Sum64String(fmt.Sprintf("%T", k))
	}

	return full
}

// keysEqual reports exact key equality. Plain comparable keys compare with
// ==; composite and uncomparable keys fall back to deep equality.
func keysEqual(a, b Key) bool {
	ap, aok := a.(*ParamKey)
	bp, bok := b.(*ParamKey)

	if aok != bok {
		return false
	}

	if aok {
		if ap == bp {
			return true
		}
		return keysEqual(ap.base, bp.base) &&
			reflect.DeepEqual(ap.args, bp.args) &&
			reflect.DeepEqual(ap.kwargs, bp.kwargs)
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}

	if ta == nil {
		return true
	}

	if ta.Comparable() {
		return a == b
	}

	return reflect.DeepEqual(a, b)
}

// keyLabel renders a key for error messages, logs and describe trees.
func keyLabel(k Key) string {
	switch v := k.(type) {
	case nil:
		return "<nil>"
	case *ParamKey:
		return v.String()
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
