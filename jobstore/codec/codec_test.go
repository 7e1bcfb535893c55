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

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	cerror "github.com/dataio/jobstore/pkg/errors"
)

func TestStatusChangeEventCompactRoundTrip(t *testing.T) {
	t.Parallel()

	e := model.NewStatusChangeEvent(7, model.Blocked, model.ReadyForProcessing)
	data, err := MarshalStatusChangeEvent(e)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 7, 3, 1}, data)

	decoded, err := UnmarshalStatusChangeEvent(data)
	require.NoError(t, err)
	require.Equal(t, e, decoded)

	registered := model.NewStatusChangeEvent(-2, model.StatusAbsent, model.Blocked)
	data, err = MarshalStatusChangeEvent(registered)
	require.NoError(t, err)
	decoded, err = UnmarshalStatusChangeEvent(data)
	require.NoError(t, err)
	require.Equal(t, registered, decoded)
}

func TestStatusChangeEventCompactErrors(t *testing.T) {
	t.Parallel()

	_, err := UnmarshalStatusChangeEvent([]byte{0, 0, 0, 7, 3})
	require.True(t, cerror.ErrDecodeFailed.Equal(err))

	_, err = UnmarshalStatusChangeEvent([]byte{0, 0, 0, 7, 3, 42})
	require.True(t, cerror.ErrUnknownSchedulingStatus.Equal(err))

	_, err = UnmarshalStatusChangeEvent([]byte{0, 0, 0, 7, 3, 0})
	require.True(t, cerror.ErrUnknownSchedulingStatus.Equal(err))
}

func TestCompactWriterSchemaMismatch(t *testing.T) {
	t.Parallel()

	w := NewCompactWriter(StatusChangeEventSchema)
	w.WriteInt32("id", 1)
	w.WriteInt8("ns", 1)
	_, err := w.Bytes()
	require.True(t, cerror.ErrEncodeFailed.Equal(err))

	w = NewCompactWriter(StatusChangeEventSchema)
	w.WriteInt32("id", 1)
	_, err = w.Bytes()
	require.True(t, cerror.ErrEncodeFailed.Equal(err))

	require.Equal(t, 6, StatusChangeEventSchema.Size())
}

func TestFactoryRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewDataIOFactory()
	tracking := model.NewDependencyTracking(model.NewTrackingKey(1, 1), 0,
		model.NewKeySet(model.NewTrackingKey(5, 0), model.NewTrackingKey(5, 1)))
	key := model.NewTrackingKey(3, 4)
	counters := model.StatusCounters{model.Blocked: 3, model.QueuedForDelivery: 1}
	values := []interface{}{
		processor.NewAddTerminationWaitingOn(model.NewTrackingKey(5, 0)),
		processor.NewUpdateCounter(model.Deltas{model.Blocked: 2, model.ReadyForDelivery: -1}),
		processor.NewRemoveWaitingOn(model.NewTrackingKey(5, 1)),
		processor.NewUpdateStatus(model.Done),
		processor.NewCompareAndUpdateStatus(model.ReadyForDelivery, model.QueuedForDelivery),
		model.NewStatusChangeEvent(7, model.Blocked, model.ReadyForProcessing),
		&key,
		processor.NewReserveCapacity(model.ReadyForProcessing, 10),
		tracking,
		&counters,
		processor.NewAddDependent(model.NewTrackingKey(5, 2)),
		processor.NewPurge(),
	}
	for _, v := range values {
		data, err := f.Encode(v)
		require.NoError(t, err, "%T", v)
		id, ok := TypeIDOf(v)
		require.True(t, ok)
		require.Equal(t, byte(id), data[0])

		decoded, err := f.Decode(data)
		require.NoError(t, err, "%T", v)
		require.Equal(t, v, decoded)
	}
}

func TestFactoryErrors(t *testing.T) {
	t.Parallel()

	f := NewDataIOFactory()
	_, err := f.Create(42)
	require.True(t, cerror.ErrUnknownTypeID.Equal(err))

	_, err = f.Decode([]byte{42, 1, 2})
	require.True(t, cerror.ErrUnknownTypeID.Equal(err))

	_, err = f.Decode(nil)
	require.True(t, cerror.ErrDecodeFailed.Equal(err))

	_, err = f.Encode("not registered")
	require.True(t, cerror.ErrEncodeFailed.Equal(err))

	v, err := f.Create(DependencyTrackingTypeID)
	require.NoError(t, err)
	require.IsType(t, &model.DependencyTracking{}, v)
}

func TestDecodeAs(t *testing.T) {
	t.Parallel()

	f := NewDataIOFactory()
	data, err := f.Encode(model.NewStatusChangeEvent(1, model.ReadyForDelivery, model.QueuedForDelivery))
	require.NoError(t, err)

	e, err := DecodeAs[*model.StatusChangeEvent](f, data)
	require.NoError(t, err)
	require.Equal(t, model.QueuedForDelivery, e.NewStatus)

	_, err = DecodeAs[*model.DependencyTracking](f, data)
	require.True(t, cerror.ErrDecodeFailed.Equal(err))
}
