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

package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	"github.com/dataio/jobstore/jobstore/store"
	"github.com/dataio/jobstore/pkg/leakutil"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func newTrackingMap() *Map[model.TrackingKey, *model.DependencyTracking] {
	return New(model.TrackingKey.Less, (*model.DependencyTracking).Clone)
}

func TestMapUpdateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTrackingMap()
	key := model.NewTrackingKey(1, 1)

	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	tracking := model.NewDependencyTracking(key, 0, nil)
	require.NoError(t, m.Update(ctx, key, func(e store.Entry[model.TrackingKey, *model.DependencyTracking]) {
		require.False(t, e.Exists())
		e.SetValue(tracking)
	}))
	// The map keeps its own copy.
	tracking.Status = model.Done

	got, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.ReadyForProcessing, got.Status)
	got.Status = model.Blocked
	got2, _, _ := m.Get(ctx, key)
	require.Equal(t, model.ReadyForProcessing, got2.Status)

	res, err := store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewAddTerminationWaitingOn(model.NewTrackingKey(5, 0), model.NewTrackingKey(5, 1)))
	require.NoError(t, err)
	require.Equal(t, model.NewStatusChangeEvent(0, model.ReadyForProcessing, model.Blocked), res.Event)
	got, _, _ = m.Get(ctx, key)
	require.Equal(t, model.Blocked, got.Status)

	res, err = store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewUpdateStatus(model.Done))
	require.NoError(t, err)
	require.Equal(t, model.Done, res.Tracking.Status)
	res, err = store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewPurge())
	require.NoError(t, err)
	require.True(t, res.Purged)
	_, ok, _ = m.Get(ctx, key)
	require.False(t, ok)
	require.Zero(t, m.Len())
}

func TestMapOrderedRange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newTrackingMap()
	keys := []model.TrackingKey{
		model.NewTrackingKey(2, 1), model.NewTrackingKey(1, 5), model.NewTrackingKey(2, 0),
		model.NewTrackingKey(3, 0), model.NewTrackingKey(1, 0),
	}
	for _, k := range keys {
		k := k
		require.NoError(t, m.Update(ctx, k, func(e store.Entry[model.TrackingKey, *model.DependencyTracking]) {
			e.SetValue(model.NewDependencyTracking(k, 1, nil))
		}))
	}

	var all []model.TrackingKey
	require.NoError(t, m.Range(ctx, func(k model.TrackingKey, _ *model.DependencyTracking) bool {
		all = append(all, k)
		return true
	}))
	require.Equal(t, model.NewKeySet(keys...).Sorted(), all)

	var job2 []model.TrackingKey
	require.NoError(t, m.AscendRange(ctx, model.NewTrackingKey(2, 0), model.NewTrackingKey(3, 0),
		func(k model.TrackingKey, _ *model.DependencyTracking) bool {
			job2 = append(job2, k)
			return true
		}))
	require.Equal(t, []model.TrackingKey{model.NewTrackingKey(2, 0), model.NewTrackingKey(2, 1)}, job2)

	// Updating the map from inside Range does not deadlock.
	count := 0
	require.NoError(t, m.Range(ctx, func(k model.TrackingKey, _ *model.DependencyTracking) bool {
		require.NoError(t, m.Delete(ctx, k))
		count++
		return count < 2
	}))
	require.Equal(t, 2, count)
	require.Equal(t, 3, m.Len())
}

func TestMapCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTrackingMap()
	err := m.Update(ctx, model.NewTrackingKey(1, 1),
		func(e store.Entry[model.TrackingKey, *model.DependencyTracking]) {})
	require.Equal(t, context.Canceled, errors.Cause(err))
	_, _, err = m.Get(ctx, model.NewTrackingKey(1, 1))
	require.Equal(t, context.Canceled, errors.Cause(err))
}

func TestCountersConcurrentUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := New(func(a, b model.SinkID) bool { return a < b }, model.StatusCounters.Clone)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := store.ExecuteOnKey[model.SinkID, model.StatusCounters, processor.CounterResult](
					ctx, m, 1, processor.NewUpdateCounter(model.Deltas{model.ReadyForProcessing: 1}))
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	counters, ok, err := m.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(800), counters.Get(model.ReadyForProcessing))
}

func TestReserveCapacityNeverExceedsMax(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := New(func(a, b model.SinkID) bool { return a < b }, model.StatusCounters.Clone)
	_, err := store.ExecuteOnKey[model.SinkID, model.StatusCounters, processor.CounterResult](
		ctx, m, 3, processor.NewUpdateCounter(model.Deltas{model.ReadyForProcessing: 100}))
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.ExecuteOnKey[model.SinkID, model.StatusCounters, processor.AdmissionResult](
				ctx, m, 3, processor.NewReserveCapacity(model.ReadyForProcessing, 10))
			require.NoError(t, err)
			if res.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 10, admitted)
	counters, _, _ := m.Get(ctx, 3)
	require.Equal(t, int64(10), counters.Get(model.QueuedForProcessing))
	require.Equal(t, int64(90), counters.Get(model.ReadyForProcessing))
}
