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

// Package memstore implements store.Map in memory for a single authoritative
// process.
package memstore

import (
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/pingcap/errors"

	"github.com/dataio/jobstore/jobstore/store"
)

type item[K comparable, V any] struct {
	key   K
	value V
}

// Map is an ordered in-memory map. Updates of one key are serialized by a
// per-key lock, updates of different keys run concurrently.
type Map[K comparable, V any] struct {
	less  func(a, b K) bool
	clone func(V) V

	mu   sync.RWMutex
	tree *btree.BTreeG[item[K, V]]

	locks keyLocks[K]
}

var _ store.OrderedMap[int, int] = (*Map[int, int])(nil)

// New creates a Map ordered by less. clone must return a deep copy of a value,
// values handed out by the map are always copies.
func New[K comparable, V any](less func(a, b K) bool, clone func(V) V) *Map[K, V] {
	return &Map[K, V]{
		less:  less,
		clone: clone,
		tree: btree.NewG(16, func(a, b item[K, V]) bool {
			return less(a.key, b.key)
		}),
		locks: keyLocks[K]{locks: make(map[K]*keyLock)},
	}
}

func (m *Map[K, V]) get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.tree.Get(item[K, V]{key: key})
	if !ok {
		var zero V
		return zero, false
	}
	return m.clone(it.value), true
}

// Get implements store.Map.
func (m *Map[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	if err := ctx.Err(); err != nil {
		var zero V
		return zero, false, errors.Trace(err)
	}
	v, ok := m.get(key)
	return v, ok, nil
}

// Update implements store.Map. fn runs exactly once.
func (m *Map[K, V]) Update(ctx context.Context, key K, fn func(e store.Entry[K, V])) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	m.locks.lock(key)
	defer m.locks.unlock(key)

	v, ok := m.get(key)
	e := store.NewEntry(key, v, ok)
	fn(e)
	if !e.Dirty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Removed() {
		m.tree.Delete(item[K, V]{key: key})
		return nil
	}
	m.tree.ReplaceOrInsert(item[K, V]{key: key, value: m.clone(e.Value())})
	return nil
}

// Range implements store.Map. fn runs on a snapshot taken before the first
// call, without holding any lock.
func (m *Map[K, V]) Range(ctx context.Context, fn func(key K, value V) bool) error {
	return m.iterate(ctx, m.snapshot(func(visit func(item[K, V]) bool) {
		m.tree.Ascend(visit)
	}), fn)
}

// AscendRange implements store.OrderedMap.
func (m *Map[K, V]) AscendRange(
	ctx context.Context, greaterOrEqual, lessThan K, fn func(key K, value V) bool,
) error {
	return m.iterate(ctx, m.snapshot(func(visit func(item[K, V]) bool) {
		m.tree.AscendRange(item[K, V]{key: greaterOrEqual}, item[K, V]{key: lessThan}, visit)
	}), fn)
}

// Delete implements store.Map.
func (m *Map[K, V]) Delete(ctx context.Context, key K) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	m.locks.lock(key)
	defer m.locks.unlock(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(item[K, V]{key: key})
	return nil
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

func (m *Map[K, V]) snapshot(walk func(visit func(item[K, V]) bool)) []item[K, V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []item[K, V]
	walk(func(it item[K, V]) bool {
		items = append(items, item[K, V]{key: it.key, value: m.clone(it.value)})
		return true
	})
	return items
}

func (m *Map[K, V]) iterate(ctx context.Context, items []item[K, V], fn func(K, V) bool) error {
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		if !fn(it.key, it.value) {
			return nil
		}
	}
	return nil
}

type keyLock struct {
	sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key that is in use.
type keyLocks[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*keyLock
}

func (l *keyLocks[K]) lock(key K) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.Lock()
}

func (l *keyLocks[K]) unlock(key K) {
	l.mu.Lock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()

	kl.Unlock()
}
