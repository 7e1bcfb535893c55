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

import "fmt"

// StatusChangeEvent describes one status transition of a chunk.
type StatusChangeEvent struct {
	SinkID    SinkID                `json:"sink-id" msgpack:"id"`
	OldStatus ChunkSchedulingStatus `json:"old-status" msgpack:"os"`
	NewStatus ChunkSchedulingStatus `json:"new-status" msgpack:"ns"`
}

// NewStatusChangeEvent creates a StatusChangeEvent.
func NewStatusChangeEvent(
	sinkID SinkID, oldStatus, newStatus ChunkSchedulingStatus,
) *StatusChangeEvent {
	return &StatusChangeEvent{SinkID: sinkID, OldStatus: oldStatus, NewStatus: newStatus}
}

func (e StatusChangeEvent) String() string {
	return fmt.Sprintf("sink %d: %s -> %s", e.SinkID, e.OldStatus, e.NewStatus)
}

// CounterDeltas coalesces events into per-sink counter deltas. Every event
// decrements its old status and increments its new one; statuses that are
// not counted are skipped, so a sink whose deltas cancel out is omitted.
func CounterDeltas(events ...*StatusChangeEvent) map[SinkID]Deltas {
	res := make(map[SinkID]Deltas)
	for _, e := range events {
		if e == nil {
			continue
		}
		d, ok := res[e.SinkID]
		if !ok {
			d = make(Deltas)
			res[e.SinkID] = d
		}
		d.Add(e.OldStatus, -1)
		d.Add(e.NewStatus, 1)
	}
	for sinkID, d := range res {
		if d.IsZero() {
			delete(res, sinkID)
		}
	}
	return res
}
