// Package fields provides the ordered key/value mapping that every report
// section is built from. Go maps do not keep insertion order, and the report
// format depends on it.
package fields

// Map is an ordered string-keyed mapping. The zero value is ready to use.
type Map struct {
	keys   []string
	values map[string]any
}

// Pair is a single key/value entry, used to build a Map in one call.
type Pair struct {
	Key   string
	Value any
}

// New creates a Map holding the given pairs in order.
func New(pairs ...Pair) *Map {
	m := &Map{}
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

// Set stores value under key. An existing key keeps its position.
func (m *Map) Set(key string, value any) *Map {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.values == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key, preserving the order of the remaining keys.
func (m *Map) Delete(key string) {
	if !m.Has(key) {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries. A nil Map is empty.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(key string, value any)) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Merge sets every entry of other on m, in other's order.
func (m *Map) Merge(other *Map) *Map {
	other.Each(func(k string, v any) {
		m.Set(k, v)
	})
	return m
}
