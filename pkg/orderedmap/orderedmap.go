// Package orderedmap provides a string-keyed map that remembers insertion order.
//
// Package manifests and resolution sub-trees are keyed by package name, and
// the order in which names were declared or first seen is significant for
// npm tie-breaking. Go maps drop that order, so these structures use [Map]
// instead. Keys are plain strings with no reserved names: a package called
// "constructor" or "__proto__" is just another key.
//
// [Map] wraps github.com/wk8/go-ordered-map with nil-safe reads and range
// iterators.
package orderedmap

import (
	"bytes"
	"iter"
	"maps"
	"slices"

	om "github.com/wk8/go-ordered-map/v2"
)

// Map is an insertion-ordered map from string keys to values of type V.
//
// The zero value is ready for decoding; construct with [New] or [FromMap]
// otherwise. A nil *Map behaves like an empty map for all read operations.
type Map[V any] struct {
	m *om.OrderedMap[string, V]
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{m: om.New[string, V]()}
}

// FromMap builds a Map from m with keys in sorted order.
func FromMap[V any](m map[string]V) *Map[V] {
	out := &Map[V]{m: om.New[string, V](om.WithCapacity[string, V](len(m)))}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out.m.Set(k, m[k])
	}
	return out
}

func (m *Map[V]) inner() *om.OrderedMap[string, V] {
	if m == nil {
		return nil
	}
	return m.m
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return m.inner().Len()
}

// Get returns the value stored under key.
func (m *Map[V]) Get(key string) (V, bool) {
	if inner := m.inner(); inner != nil {
		return inner.Get(key)
	}
	var zero V
	return zero, false
}

// Has reports whether key is present.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. A new key is appended to the order; an existing key
// keeps its position.
func (m *Map[V]) Set(key string, v V) {
	if m.m == nil {
		m.m = om.New[string, V]()
	}
	m.m.Set(key, v)
}

// Delete removes key and reports whether it was present.
func (m *Map[V]) Delete(key string) bool {
	inner := m.inner()
	if inner == nil {
		return false
	}
	_, ok := inner.Delete(key)
	return ok
}

// Keys returns the keys in insertion order.
func (m *Map[V]) Keys() []string {
	if m.Len() == 0 {
		return nil
	}
	keys := make([]string, 0, m.Len())
	for k := range m.All() {
		keys = append(keys, k)
	}
	return keys
}

// All iterates over key/value pairs in insertion order.
func (m *Map[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for p := m.inner().Oldest(); p != nil; p = p.Next() {
			if !yield(p.Key, p.Value) {
				return
			}
		}
	}
}

// ToMap returns an unordered copy.
func (m *Map[V]) ToMap() map[string]V {
	if m.inner() == nil {
		return nil
	}
	return maps.Collect(m.All())
}

// Clone returns a shallow copy with the same order.
func (m *Map[V]) Clone() *Map[V] {
	if m == nil {
		return nil
	}
	out := &Map[V]{m: om.New[string, V](om.WithCapacity[string, V](m.Len()))}
	for k, v := range m.All() {
		out.m.Set(k, v)
	}
	return out
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order.
func (m *Map[V]) MarshalJSON() ([]byte, error) {
	if m.inner() == nil {
		return []byte("{}"), nil
	}
	return m.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, preserving the order keys appear in.
// A JSON null leaves the map empty.
func (m *Map[V]) UnmarshalJSON(data []byte) error {
	fresh := om.New[string, V]()
	if !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if err := fresh.UnmarshalJSON(data); err != nil {
			return err
		}
	}
	m.m = fresh
	return nil
}
