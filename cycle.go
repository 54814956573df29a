package alembic

// resolveStack tracks the chain of in-progress keys within one logical
// resolution call. It is per-call state threaded through nested provider
// resolution and is never shared across concurrent calls. Membership checks
// are O(1) via a keyMap; the slice keeps the ordered trace for errors.
type resolveStack struct {
	chain   []Key
	members *keyMap
}

func newResolveStack() *resolveStack {
	return &resolveStack{members: newKeyMap()}
}

// enter pushes k and reports whether it was accepted. A false return means k
// is already in progress: a cycle.
func (s *resolveStack) enter(k Key) bool {
	if s.members.has(k) {
		return false
	}
	s.chain = append(s.chain, k)
	s.members.put(k, struct{}{})
	return true
}

// leave pops the most recently entered key. Callers pair every successful
// enter with exactly one leave, on all exit paths.
func (s *resolveStack) leave() {
	last := s.chain[len(s.chain)-1]
	s.chain = s.chain[:len(s.chain)-1]
	s.members.delete(last)
}

// trace returns the ordered chain closed by the repeated key, e.g. [A B A].
func (s *resolveStack) trace(repeat Key) []Key {
	out := make([]Key, 0, len(s.chain)+1)
	out = append(out, s.chain...)
	return append(out, repeat)
}
