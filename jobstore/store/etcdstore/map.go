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

// Package etcdstore implements store.Map on etcd. Every update is an
// optimistic transaction guarded by the mod revision of the key.
package etcdstore

import (
	"context"
	"strings"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	clientV3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/store"
	cerrors "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/etcd"
)

// defaultMaxConflicts bounds the compare-and-swap attempts of one update.
const defaultMaxConflicts = 64

// KeyCodec maps keys to etcd key suffixes. Encode must preserve the key
// order for AscendRange to be meaningful.
type KeyCodec[K comparable] struct {
	Encode func(K) string
	Decode func(string) (K, error)
}

// ValueCodec maps values to etcd values.
type ValueCodec[V any] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

// Map is a store.OrderedMap kept under one etcd prefix.
type Map[K comparable, V any] struct {
	name         string
	client       *etcd.Client
	prefix       string
	keys         KeyCodec[K]
	values       ValueCodec[V]
	maxConflicts int
}

var _ store.OrderedMap[int, int] = (*Map[int, int])(nil)

// New creates a Map. name labels the map in logs and metrics.
func New[K comparable, V any](
	name string, client *etcd.Client, prefix string, keys KeyCodec[K], values ValueCodec[V],
) *Map[K, V] {
	return &Map[K, V]{
		name:         name,
		client:       client,
		prefix:       prefix,
		keys:         keys,
		values:       values,
		maxConflicts: defaultMaxConflicts,
	}
}

func (m *Map[K, V]) etcdKey(key K) string {
	return m.prefix + m.keys.Encode(key)
}

func (m *Map[K, V]) load(ctx context.Context, key K) (v V, exists bool, rev int64, err error) {
	resp, err := m.client.Get(ctx, m.etcdKey(key))
	if err != nil {
		return v, false, 0, cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	if len(resp.Kvs) == 0 {
		return v, false, 0, nil
	}
	kv := resp.Kvs[0]
	v, err = m.values.Decode(kv.Value)
	if err != nil {
		return v, false, 0, errors.Trace(err)
	}
	return v, true, kv.ModRevision, nil
}

// Get implements store.Map.
func (m *Map[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	v, ok, _, err := m.load(ctx, key)
	return v, ok, err
}

// Update implements store.Map. fn is run again on the new value whenever
// another writer changed the key in between.
func (m *Map[K, V]) Update(ctx context.Context, key K, fn func(e store.Entry[K, V])) error {
	etcdKey := m.etcdKey(key)
	for i := 0; i < m.maxConflicts; i++ {
		v, exists, rev, err := m.load(ctx, key)
		if err != nil {
			return errors.Trace(err)
		}
		e := store.NewEntry(key, v, exists)
		fn(e)
		if !e.Dirty() || (e.Removed() && !exists) {
			return nil
		}

		var op clientV3.Op
		if e.Removed() {
			op = clientV3.OpDelete(etcdKey)
		} else {
			data, err := m.values.Encode(e.Value())
			if err != nil {
				return errors.Trace(err)
			}
			op = clientV3.OpPut(etcdKey, string(data))
		}
		// A mod revision of 0 compares equal to an absent key.
		cmp := clientV3.Compare(clientV3.ModRevision(etcdKey), "=", rev)
		resp, err := m.client.Txn(ctx, []clientV3.Cmp{cmp}, []clientV3.Op{op}, nil)
		if err != nil {
			return cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
		}
		if resp.Succeeded {
			return nil
		}
		casConflictCounter.WithLabelValues(m.name).Inc()
		log.Debug("etcd cas conflicted, retry",
			zap.String("map", m.name), zap.String("key", etcdKey), zap.Int("attempt", i+1))
	}
	return cerrors.ErrEtcdTxnConflict.GenWithStackByArgs(etcdKey, m.maxConflicts)
}

// Range implements store.Map.
func (m *Map[K, V]) Range(ctx context.Context, fn func(key K, value V) bool) error {
	resp, err := m.client.Get(ctx, m.prefix, clientV3.WithPrefix())
	if err != nil {
		return cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	return m.visit(resp, fn)
}

// AscendRange implements store.OrderedMap.
func (m *Map[K, V]) AscendRange(
	ctx context.Context, greaterOrEqual, lessThan K, fn func(key K, value V) bool,
) error {
	resp, err := m.client.Get(ctx, m.etcdKey(greaterOrEqual),
		clientV3.WithRange(m.etcdKey(lessThan)))
	if err != nil {
		return cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	return m.visit(resp, fn)
}

func (m *Map[K, V]) visit(resp *clientV3.GetResponse, fn func(key K, value V) bool) error {
	for _, kv := range resp.Kvs {
		key, err := m.keys.Decode(strings.TrimPrefix(string(kv.Key), m.prefix))
		if err != nil {
			return errors.Trace(err)
		}
		value, err := m.values.Decode(kv.Value)
		if err != nil {
			return errors.Trace(err)
		}
		if !fn(key, value) {
			return nil
		}
	}
	return nil
}

// Delete implements store.Map.
func (m *Map[K, V]) Delete(ctx context.Context, key K) error {
	_, err := m.client.Delete(ctx, m.etcdKey(key))
	return cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
}
