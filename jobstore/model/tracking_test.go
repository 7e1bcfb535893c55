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

package model

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestNewDependencyTracking(t *testing.T) {
	t.Parallel()

	free := NewDependencyTracking(NewTrackingKey(1, 1), 3, nil)
	require.Equal(t, ReadyForProcessing, free.Status)
	require.False(t, free.IsWaiting())
	require.Equal(t, int32(1), free.Priority)

	deps := NewKeySet(NewTrackingKey(1, 0))
	blocked := NewDependencyTracking(NewTrackingKey(1, 2), 3, deps)
	require.Equal(t, Blocked, blocked.Status)
	require.Equal(t, ReadyForProcessing, blocked.BlockedFor)
	deps.Add(NewTrackingKey(9, 9))
	require.Len(t, blocked.WaitingOn, 1)
}

func TestDependencyTrackingClone(t *testing.T) {
	t.Parallel()

	orig := NewDependencyTracking(NewTrackingKey(1, 2), 3, NewKeySet(NewTrackingKey(1, 0)))
	c := orig.Clone()
	require.Equal(t, orig, c)
	c.WaitingOn.Remove(NewTrackingKey(1, 0))
	c.Status = Done
	require.Len(t, orig.WaitingOn, 1)
	require.Equal(t, Blocked, orig.Status)
	require.True(t, c.Purgeable())
	require.False(t, orig.Purgeable())

	var nilTracking *DependencyTracking
	require.Nil(t, nilTracking.Clone())
}

func TestDependencyTrackingMsgpack(t *testing.T) {
	t.Parallel()

	orig := NewDependencyTracking(NewTrackingKey(4, 2), 8,
		NewKeySet(NewTrackingKey(4, 0), NewTrackingKey(4, 1)))
	data, err := msgpack.Marshal(orig)
	require.NoError(t, err)
	decoded := &DependencyTracking{}
	require.NoError(t, msgpack.Unmarshal(data, decoded))
	require.Equal(t, orig, decoded)
}
