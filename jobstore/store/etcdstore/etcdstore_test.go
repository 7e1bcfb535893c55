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

package etcdstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	clientV3 "go.etcd.io/etcd/client/v3"

	"github.com/dataio/jobstore/jobstore/codec"
	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	"github.com/dataio/jobstore/jobstore/store"
	cerrors "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/etcd"
	"github.com/dataio/jobstore/pkg/leakutil"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestTrackingKeyCodec(t *testing.T) {
	t.Parallel()

	for _, k := range []model.TrackingKey{{JobID: 0, ChunkID: 0}, {JobID: -5, ChunkID: 9}, {JobID: 12, ChunkID: 3}} {
		s := TrackingKeyCodec.Encode(k)
		decoded, err := TrackingKeyCodec.Decode(s)
		require.NoError(t, err)
		require.Equal(t, k, decoded)
	}
	_, err := TrackingKeyCodec.Decode("80000000")
	require.Error(t, err)
}

func TestTrackingMap(t *testing.T) {
	s := etcd.NewTester(t)
	ctx := context.Background()
	m := NewTrackingMap(s.Client, "test", codec.NewDataIOFactory())

	key := model.NewTrackingKey(1, 1)
	require.NoError(t, m.Update(ctx, key, func(e store.Entry[model.TrackingKey, *model.DependencyTracking]) {
		require.False(t, e.Exists())
		e.SetValue(model.NewDependencyTracking(key, 0, nil))
	}))

	res, err := store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewAddTerminationWaitingOn(model.NewTrackingKey(5, 0), model.NewTrackingKey(5, 1)))
	require.NoError(t, err)
	require.True(t, res.Modified)
	require.Equal(t, model.NewStatusChangeEvent(0, model.ReadyForProcessing, model.Blocked), res.Event)

	got, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.Blocked, got.Status)
	require.Len(t, got.WaitingOn, 2)

	// Unmodified runs write nothing.
	res, err = store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewAddTerminationWaitingOn(model.NewTrackingKey(5, 0)))
	require.NoError(t, err)
	require.False(t, res.Modified)

	res, err = store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewUpdateStatus(model.Done))
	require.NoError(t, err)
	require.Equal(t, model.Done, res.Tracking.Status)
	res, err = store.ExecuteOnKey[model.TrackingKey, *model.DependencyTracking, processor.Result](
		ctx, m, key, processor.NewPurge())
	require.NoError(t, err)
	require.True(t, res.Purged)
	_, ok, err = m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrackingMapRange(t *testing.T) {
	s := etcd.NewTester(t)
	ctx := context.Background()
	m := NewTrackingMap(s.Client, "test", codec.NewDataIOFactory())

	keys := []model.TrackingKey{
		model.NewTrackingKey(2, 1), model.NewTrackingKey(-1, 5), model.NewTrackingKey(2, 0),
		model.NewTrackingKey(3, 0), model.NewTrackingKey(2, -4),
	}
	for _, k := range keys {
		k := k
		require.NoError(t, m.Update(ctx, k, func(e store.Entry[model.TrackingKey, *model.DependencyTracking]) {
			e.SetValue(model.NewDependencyTracking(k, 1, nil))
		}))
	}

	var all []model.TrackingKey
	require.NoError(t, m.Range(ctx, func(k model.TrackingKey, v *model.DependencyTracking) bool {
		require.Equal(t, k, v.Key)
		all = append(all, k)
		return true
	}))
	require.Equal(t, model.NewKeySet(keys...).Sorted(), all)

	var job2 []model.TrackingKey
	require.NoError(t, m.AscendRange(ctx, model.NewTrackingKey(2, -1000), model.NewTrackingKey(3, -1000),
		func(k model.TrackingKey, _ *model.DependencyTracking) bool {
			job2 = append(job2, k)
			return true
		}))
	require.Equal(t, []model.TrackingKey{
		model.NewTrackingKey(2, -4), model.NewTrackingKey(2, 0), model.NewTrackingKey(2, 1),
	}, job2)

	require.NoError(t, m.Delete(ctx, model.NewTrackingKey(3, 0)))
	require.NoError(t, m.Delete(ctx, model.NewTrackingKey(3, 0)))
	_, ok, err := m.Get(ctx, model.NewTrackingKey(3, 0))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCountersMapConcurrentCAS(t *testing.T) {
	s := etcd.NewTester(t)
	ctx := context.Background()
	factory := codec.NewDataIOFactory()
	// Two maps share the prefix like two members of a cluster.
	m1 := NewCountersMap(s.Client, "test", factory)
	m2 := NewCountersMap(s.Client, "test", factory)

	var wg sync.WaitGroup
	for _, m := range []*Map[model.SinkID, model.StatusCounters]{m1, m2} {
		m := m
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					_, err := store.ExecuteOnKey[model.SinkID, model.StatusCounters, processor.CounterResult](
						ctx, m, 7, processor.NewUpdateCounter(model.Deltas{model.Blocked: 1}))
					require.NoError(t, err)
				}
			}()
		}
	}
	wg.Wait()

	counters, ok, err := m1.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(80), counters.Get(model.Blocked))
}

func TestEventLog(t *testing.T) {
	s := etcd.NewTester(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	factory := codec.NewDataIOFactory()
	publisher := NewEventLog(s.Client, "test", 10, factory)
	watcher := NewEventLog(s.Client, "test", 10, factory)
	require.NotEqual(t, publisher.Source(), watcher.Source())

	ch, err := watcher.Watch(ctx)
	require.NoError(t, err)

	events := []*model.StatusChangeEvent{
		model.NewStatusChangeEvent(7, model.Blocked, model.ReadyForProcessing),
		model.NewStatusChangeEvent(7, model.ReadyForProcessing, model.QueuedForProcessing),
		model.NewStatusChangeEvent(3, model.StatusAbsent, model.ReadyForProcessing),
	}
	require.NoError(t, publisher.Publish(ctx, events[:2]...))
	require.NoError(t, publisher.Publish(ctx, events[2]))
	require.NoError(t, publisher.Publish(ctx))

	for _, expected := range events {
		select {
		case got := <-ch:
			require.Equal(t, publisher.Source(), got.Source)
			require.Equal(t, expected, got.Event)
		case <-time.After(10 * time.Second):
			require.FailNow(t, "event not received", expected.String())
		}
	}
	cancel()
	for range ch {
	}
}

func TestEventLogLease(t *testing.T) {
	s := etcd.NewTester(t)
	ctx := context.Background()
	mockClock := clock.NewMock()
	l := NewEventLog(s.Client, "test", 10, codec.NewDataIOFactory())
	l.clock = mockClock
	event := model.NewStatusChangeEvent(1, model.QueuedForDelivery, model.Done)

	require.NoError(t, l.Publish(ctx, event))
	first := l.lease
	require.NotEqual(t, clientV3.NoLease, first)
	require.NoError(t, l.Publish(ctx, event))
	require.Equal(t, first, l.lease)

	// Half way through the TTL the next publish moves to a new lease.
	mockClock.Add(5 * time.Second)
	require.NoError(t, l.Publish(ctx, event))
	second := l.lease
	require.NotEqual(t, first, second)

	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))
	err := l.Publish(ctx, event)
	require.True(t, cerrors.ErrEtcdSessionDone.Equal(err))

	// Events of the revoked lease are gone, older ones wait for their TTL.
	resp, err := s.Client.Get(ctx, l.eventKey(3))
	require.NoError(t, err)
	require.Empty(t, resp.Kvs)
	resp, err = s.Client.Get(ctx, l.eventKey(1))
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	ttl, err := s.Client.Unwrap().TimeToLive(ctx, second)
	require.NoError(t, err)
	require.Equal(t, int64(-1), ttl.TTL)
}
