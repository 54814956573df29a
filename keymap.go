package alembic

// keyMap is a hash-bucket map over arbitrary keys. Go's built-in map cannot
// hold keys whose parameter payloads are unhashable, so lookups hash through
// hashOf (which never fails) and resolve collisions with an exact-equality
// scan. Not safe for concurrent use; callers hold the appropriate lock.
type keyMap struct {
	buckets map[uint64][]keyEntry
	size    int
}

type keyEntry struct {
	key   Key
	value any
}

func newKeyMap() *keyMap {
	return &keyMap{buckets: make(map[uint64][]keyEntry)}
}

func (m *keyMap) get(k Key) (any, bool) {
	for _, e := range m.buckets[hashOf(k)] {
		if keysEqual(e.key, k) {
			return e.value, true
		}
	}
	return nil, false
}

func (m *keyMap) has(k Key) bool {
	_, ok := m.get(k)
	return ok
}

// put inserts or replaces the entry for k.
func (m *keyMap) put(k Key, v any) {
	h := hashOf(k)
	bucket := m.buckets[h]
	for i, e := range bucket {
		if keysEqual(e.key, k) {
			bucket[i].value = v
			return
		}
	}
	m.buckets[h] = append(bucket, keyEntry{key: k, value: v})
	m.size++
}

// putIfAbsent inserts v unless k is present, returning the stored value and
// whether it was already there.
func (m *keyMap) putIfAbsent(k Key, v any) (any, bool) {
	h := hashOf(k)
	bucket := m.buckets[h]
	for _, e := range bucket {
		if keysEqual(e.key, k) {
			return e.value, true
		}
	}
	m.buckets[h] = append(bucket, keyEntry{key: k, value: v})
	m.size++
	return v, false
}

func (m *keyMap) delete(k Key) {
	h := hashOf(k)
	bucket := m.buckets[h]
	for i, e := range bucket {
		if keysEqual(e.key, k) {
			m.buckets[h] = append(bucket[:i], bucket[i+1:]...)
			m.size--
			if len(m.buckets[h]) == 0 {
				delete(m.buckets, h)
			}
			return
		}
	}
}

func (m *keyMap) len() int { return m.size }

// each visits entries in unspecified order; fn returning false stops the walk.
func (m *keyMap) each(fn func(k Key, v any) bool) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// clone returns an independent shallow copy.
func (m *keyMap) clone() *keyMap {
	out := &keyMap{buckets: make(map[uint64][]keyEntry, len(m.buckets)), size: m.size}
	for h, bucket := range m.buckets {
		out.buckets[h] = append([]keyEntry(nil), bucket...)
	}
	return out
}
