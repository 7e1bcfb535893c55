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

// Package codec encodes the values and processors that cross process
// boundaries. Every value is tagged with a one byte type id registered in the
// DataIO factory.
package codec

import (
	"github.com/pingcap/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	cerror "github.com/dataio/jobstore/pkg/errors"
)

// DataIOFactoryID identifies the DataIO factory among other factories sharing
// the same store.
const DataIOFactoryID int32 = 1

// TypeID identifies a type within the DataIO factory.
type TypeID byte

// Type ids of the DataIO factory. The values are persisted and must never be
// reused for another type.
const (
	AddTerminationWaitingOnTypeID TypeID = 1
	UpdateCounterTypeID           TypeID = 2
	RemoveWaitingOnTypeID         TypeID = 3
	UpdateStatusTypeID            TypeID = 4
	StatusChangeEventTypeID       TypeID = 5
	TrackingKeyTypeID             TypeID = 6
	ReserveCapacityTypeID         TypeID = 7
	DependencyTrackingTypeID      TypeID = 8
	StatusCountersTypeID          TypeID = 9
	AddDependentTypeID            TypeID = 10
	PurgeTypeID                   TypeID = 11
)

// Factory creates empty instances of the DataIO types by type id.
type Factory struct {
	constructors map[TypeID]func() interface{}
}

// NewDataIOFactory returns the factory holding every DataIO type.
func NewDataIOFactory() *Factory {
	return &Factory{constructors: map[TypeID]func() interface{}{
		AddTerminationWaitingOnTypeID: func() interface{} { return &processor.AddTerminationWaitingOn{} },
		UpdateCounterTypeID:           func() interface{} { return &processor.UpdateCounter{} },
		RemoveWaitingOnTypeID:         func() interface{} { return &processor.RemoveWaitingOn{} },
		UpdateStatusTypeID:            func() interface{} { return &processor.UpdateStatus{} },
		StatusChangeEventTypeID:       func() interface{} { return &model.StatusChangeEvent{} },
		TrackingKeyTypeID:             func() interface{} { return &model.TrackingKey{} },
		ReserveCapacityTypeID:         func() interface{} { return &processor.ReserveCapacity{} },
		DependencyTrackingTypeID:      func() interface{} { return &model.DependencyTracking{} },
		StatusCountersTypeID:          func() interface{} { return &model.StatusCounters{} },
		AddDependentTypeID:            func() interface{} { return &processor.AddDependent{} },
		PurgeTypeID:                   func() interface{} { return &processor.Purge{} },
	}}
}

// Create returns a new empty instance of the type registered under id.
func (f *Factory) Create(id TypeID) (interface{}, error) {
	c, ok := f.constructors[id]
	if !ok {
		return nil, cerror.ErrUnknownTypeID.GenWithStackByArgs(id, DataIOFactoryID)
	}
	return c(), nil
}

// TypeIDOf returns the type id of v, which must be a pointer to a DataIO type.
func TypeIDOf(v interface{}) (TypeID, bool) {
	switch v.(type) {
	case *processor.AddTerminationWaitingOn:
		return AddTerminationWaitingOnTypeID, true
	case *processor.UpdateCounter:
		return UpdateCounterTypeID, true
	case *processor.RemoveWaitingOn:
		return RemoveWaitingOnTypeID, true
	case *processor.UpdateStatus:
		return UpdateStatusTypeID, true
	case *model.StatusChangeEvent:
		return StatusChangeEventTypeID, true
	case *model.TrackingKey:
		return TrackingKeyTypeID, true
	case *processor.ReserveCapacity:
		return ReserveCapacityTypeID, true
	case *model.DependencyTracking:
		return DependencyTrackingTypeID, true
	case *model.StatusCounters:
		return StatusCountersTypeID, true
	case *processor.AddDependent:
		return AddDependentTypeID, true
	case *processor.Purge:
		return PurgeTypeID, true
	}
	return 0, false
}

// Encode encodes v as its type id followed by its payload. Status change
// events use the compact layout, everything else is msgpack.
func (f *Factory) Encode(v interface{}) ([]byte, error) {
	id, ok := TypeIDOf(v)
	if !ok {
		return nil, cerror.ErrEncodeFailed.GenWithStackByArgs(errors.Errorf("unsupported type %T", v))
	}
	if e, ok := v.(*model.StatusChangeEvent); ok {
		payload, err := MarshalStatusChangeEvent(e)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return append([]byte{byte(id)}, payload...), nil
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrEncodeFailed, err)
	}
	return append([]byte{byte(id)}, payload...), nil
}

// Decode decodes data produced by Encode into a new instance of its type.
func (f *Factory) Decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, cerror.ErrDecodeFailed.GenWithStackByArgs("empty data")
	}
	id := TypeID(data[0])
	v, err := f.Create(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if id == StatusChangeEventTypeID {
		e, err := UnmarshalStatusChangeEvent(data[1:])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return e, nil
	}
	if err := msgpack.Unmarshal(data[1:], v); err != nil {
		return nil, cerror.WrapError(cerror.ErrDecodeFailed, err)
	}
	return v, nil
}

// DecodeAs decodes data and checks it holds a T.
func DecodeAs[T any](f *Factory, data []byte) (T, error) {
	var zero T
	v, err := f.Decode(data)
	if err != nil {
		return zero, errors.Trace(err)
	}
	res, ok := v.(T)
	if !ok {
		return zero, cerror.ErrDecodeFailed.GenWithStackByArgs(
			errors.Errorf("expect %T, got %T", zero, v))
	}
	return res, nil
}
