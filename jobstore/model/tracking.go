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

// DependencyTracking is the scheduling record of one chunk.
//
// NB: a DependencyTracking read from a map is a snapshot. It must only be
// mutated by a processor running against the map entry.
type DependencyTracking struct {
	Key    TrackingKey           `json:"key" msgpack:"k"`
	SinkID SinkID                `json:"sink-id" msgpack:"s"`
	Status ChunkSchedulingStatus `json:"status" msgpack:"st"`
	// WaitingOn holds the chunks that must be done before this chunk may
	// leave Blocked.
	WaitingOn KeySet `json:"waiting-on" msgpack:"w"`
	// BlockedFor is the ready status the chunk returns to once WaitingOn
	// drains. It is only meaningful while Status is Blocked.
	BlockedFor ChunkSchedulingStatus `json:"blocked-for" msgpack:"b"`
	// Priority orders promotion within a sink, lower first.
	Priority int32 `json:"priority" msgpack:"p"`
	// Dependents holds the chunks waiting on this chunk. A done chunk stays
	// in the map until all of them are released.
	Dependents KeySet `json:"dependents" msgpack:"d"`
}

// NewDependencyTracking creates a record in ReadyForProcessing, or in Blocked
// if it has anything to wait on.
func NewDependencyTracking(
	key TrackingKey, sinkID SinkID, waitingOn KeySet,
) *DependencyTracking {
	t := &DependencyTracking{
		Key:        key,
		SinkID:     sinkID,
		Status:     ReadyForProcessing,
		WaitingOn:  waitingOn.Clone(),
		Priority:   key.ChunkID,
		Dependents: NewKeySet(),
	}
	if len(t.WaitingOn) > 0 {
		t.Status = Blocked
		t.BlockedFor = ReadyForProcessing
	}
	return t
}

// Clone returns a deep copy.
func (t *DependencyTracking) Clone() *DependencyTracking {
	if t == nil {
		return nil
	}
	c := *t
	c.WaitingOn = t.WaitingOn.Clone()
	if t.Dependents != nil {
		c.Dependents = t.Dependents.Clone()
	}
	return &c
}

// IsWaiting returns true if the chunk still waits on other chunks.
func (t *DependencyTracking) IsWaiting() bool {
	return len(t.WaitingOn) > 0
}

// Purgeable returns true if the record may be removed from the map.
func (t *DependencyTracking) Purgeable() bool {
	return t.Status.IsTerminal() && !t.IsWaiting()
}
