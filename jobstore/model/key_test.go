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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	cerror "github.com/dataio/jobstore/pkg/errors"
)

func TestParseTrackingKey(t *testing.T) {
	t.Parallel()

	k, err := ParseTrackingKey("5/12")
	require.NoError(t, err)
	require.Equal(t, NewTrackingKey(5, 12), k)
	require.Equal(t, "5/12", k.String())

	for _, s := range []string{"", "5", "5/", "a/1", "1/2/3"} {
		_, err := ParseTrackingKey(s)
		require.True(t, cerror.ErrInvalidTrackingKey.Equal(err), s)
	}
}

func TestTrackingKeyLess(t *testing.T) {
	t.Parallel()

	require.True(t, NewTrackingKey(1, 9).Less(NewTrackingKey(2, 0)))
	require.True(t, NewTrackingKey(1, 0).Less(NewTrackingKey(1, 1)))
	require.False(t, NewTrackingKey(1, 1).Less(NewTrackingKey(1, 1)))
}

func TestKeySet(t *testing.T) {
	t.Parallel()

	a := NewKeySet(NewTrackingKey(5, 0), NewTrackingKey(5, 1))
	b := NewKeySet(NewTrackingKey(5, 1), NewTrackingKey(6, 0))

	u := a.Union(b)
	require.Len(t, u, 3)
	require.Len(t, a, 2)
	require.True(t, u.Contains(NewTrackingKey(6, 0)))
	require.False(t, a.Equal(u))
	require.True(t, a.Equal(a.Clone()))

	require.True(t, u.Remove(NewTrackingKey(6, 0)))
	require.False(t, u.Remove(NewTrackingKey(6, 0)))
	require.True(t, a.Equal(u))

	require.Equal(t, []TrackingKey{{5, 0}, {5, 1}}, a.Sorted())

	var empty KeySet
	require.True(t, empty.Equal(NewKeySet()))
	b2, err := json.Marshal(empty)
	require.NoError(t, err)
	require.Equal(t, "[]", string(b2))
	b2, err = json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `["5/0","5/1"]`, string(b2))
}

func TestKeySetMsgpack(t *testing.T) {
	t.Parallel()

	a := NewKeySet(NewTrackingKey(2, 7), NewTrackingKey(1, 3))
	data, err := msgpack.Marshal(a)
	require.NoError(t, err)
	var decoded KeySet
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	require.True(t, a.Equal(decoded))

	other := NewKeySet(NewTrackingKey(1, 3), NewTrackingKey(2, 7))
	data2, err := msgpack.Marshal(other)
	require.NoError(t, err)
	require.Equal(t, data, data2)
}
