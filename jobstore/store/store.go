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

import "context"

// Entry is the view a processor gets of one key of a Map. Changes are only
// written back if SetValue or Remove is called.
type Entry[K comparable, V any] interface {
	Key() K
	// Value returns the current value, or the zero value if the key is absent.
	Value() V
	Exists() bool
	SetValue(v V)
	Remove()
}

// Processor runs against a single entry and produces a result.
//
// A processor may be invoked more than once for one ExecuteOnKey call, so it
// must be a pure function of the entry it is given.
type Processor[K comparable, V any, R any] interface {
	Process(e Entry[K, V]) R
}

// Map is a keyed store that applies single-key read-modify-write operations
// atomically.
type Map[K comparable, V any] interface {
	// Get returns a copy of the value stored under key.
	Get(ctx context.Context, key K) (V, bool, error)
	// Update runs fn against the entry of key and commits the changes fn made,
	// atomically with respect to other updates of the same key. fn may be
	// called again if a concurrent writer won.
	Update(ctx context.Context, key K, fn func(e Entry[K, V])) error
	// Range calls fn on a snapshot of every entry until fn returns false.
	Range(ctx context.Context, fn func(key K, value V) bool) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key K) error
}

// OrderedMap is a Map that can iterate a key range in order.
type OrderedMap[K comparable, V any] interface {
	Map[K, V]
	// AscendRange calls fn on every entry in [greaterOrEqual, lessThan) in
	// key order until fn returns false.
	AscendRange(ctx context.Context, greaterOrEqual, lessThan K, fn func(key K, value V) bool) error
}

// ExecuteOnKey applies p to the entry of key and returns the result of the
// invocation that was committed.
func ExecuteOnKey[K comparable, V any, R any](
	ctx context.Context, m Map[K, V], key K, p Processor[K, V, R],
) (R, error) {
	var res R
	err := m.Update(ctx, key, func(e Entry[K, V]) {
		res = p.Process(e)
	})
	return res, err
}
