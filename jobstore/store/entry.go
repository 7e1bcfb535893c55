// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package store

// MutableEntry is the Entry implementation handed out by the maps. It
// records whether the processor changed the entry.
type MutableEntry[K comparable, V any] struct {
	key     K
	value   V
	exists  bool
	dirty   bool
	removed bool
}

// NewEntry creates an entry for key. exists tells whether value is stored.
func NewEntry[K comparable, V any](key K, value V, exists bool) *MutableEntry[K, V] {
	return &MutableEntry[K, V]{key: key, value: value, exists: exists}
}

// Key implements Entry.
func (e *MutableEntry[K, V]) Key() K {
	return e.key
}

// Value implements Entry.
func (e *MutableEntry[K, V]) Value() V {
	return e.value
}

// Exists implements Entry.
func (e *MutableEntry[K, V]) Exists() bool {
	return e.exists
}

// SetValue implements Entry.
func (e *MutableEntry[K, V]) SetValue(v V) {
	e.value = v
	e.exists = true
	e.dirty = true
	e.removed = false
}

// Remove implements Entry.
func (e *MutableEntry[K, V]) Remove() {
	var zero V
	e.value = zero
	e.exists = false
	e.dirty = true
	e.removed = true
}

// Dirty returns true if SetValue or Remove was called.
func (e *MutableEntry[K, V]) Dirty() bool {
	return e.dirty
}

// Removed returns true if the last change was a Remove.
func (e *MutableEntry[K, V]) Removed() bool {
	return e.removed
}
