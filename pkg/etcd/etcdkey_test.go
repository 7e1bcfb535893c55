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

package etcd

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	cerrors "github.com/dataio/jobstore/pkg/errors"
)

func TestKeyLayout(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/dataio/jobstore/default/tracking/", TrackingPrefix(DefaultClusterID))
	require.Equal(t, "/dataio/jobstore/c1/counters/", CountersPrefix("c1"))
	require.Equal(t, "/dataio/jobstore/c1/events/", EventsPrefix("c1"))

	parts, err := SplitKey(TrackingPrefix("c1"), TrackingPrefix("c1")+"80000001/80000002")
	require.NoError(t, err)
	require.Equal(t, []string{"80000001", "80000002"}, parts)
	_, err = SplitKey(TrackingPrefix("c1"), "/other/key")
	require.True(t, cerrors.ErrInvalidEtcdKey.Equal(err))
}

func TestEncodeIDOrder(t *testing.T) {
	t.Parallel()

	ids := []int32{math.MinInt32, -100, -1, 0, 1, 7, 100, math.MaxInt32}
	encoded := make([]string, 0, len(ids))
	for _, id := range ids {
		s := EncodeID(id)
		require.Len(t, s, 8)
		decoded, err := DecodeID(s)
		require.NoError(t, err)
		require.Equal(t, id, decoded)
		encoded = append(encoded, s)
	}
	require.True(t, sort.StringsAreSorted(encoded))
	require.Equal(t, "80000000", EncodeID(0))

	for _, s := range []string{"", "123", "zzzzzzzz"} {
		_, err := DecodeID(s)
		require.True(t, cerrors.ErrInvalidEtcdKey.Equal(err), s)
	}
}
