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
	"fmt"

	cerror "github.com/dataio/jobstore/pkg/errors"
)

// ChunkSchedulingStatus is the scheduling state of a chunk.
//
//	┌────────────────────┐      ┌─────────────────────┐
//	│ ReadyForProcessing ├─────>│ QueuedForProcessing │
//	└─────┬──────────────┘      └──┬───────────────┬──┘
//	      │      ┌─────────┐       │               │
//	      └─────>│ Blocked │<──────┘               │
//	             └────┬────┘                       v
//	                  │ unblock         ┌──────────────────┐
//	                  └────────────────>│ ReadyForDelivery │
//	                                    └────────┬─────────┘
//	┌──────┐    ┌───────────────────┐            │
//	│ Done │<───┤ QueuedForDelivery │<───────────┘
//	└──────┘    └───────────────────┘
//
// A chunk blocked before processing returns to ReadyForProcessing when it is
// unblocked. Any non-terminal status may be forced to Done when a job is aborted.
type ChunkSchedulingStatus int8

const (
	// StatusAbsent is the zero value. It is used as the old status of the
	// event emitted when a chunk starts being tracked, and is never stored.
	StatusAbsent ChunkSchedulingStatus = 0
	// ReadyForProcessing means the chunk may be queued for processing.
	ReadyForProcessing ChunkSchedulingStatus = 1
	// QueuedForProcessing means the chunk has been handed to a processor.
	QueuedForProcessing ChunkSchedulingStatus = 2
	// Blocked means the chunk waits on other chunks to be delivered.
	Blocked ChunkSchedulingStatus = 3
	// ReadyForDelivery means the chunk may be queued for delivery.
	ReadyForDelivery ChunkSchedulingStatus = 4
	// QueuedForDelivery means the chunk has been handed to its sink.
	QueuedForDelivery ChunkSchedulingStatus = 5
	// Done is terminal.
	Done ChunkSchedulingStatus = 6
)

// CountedStatuses are the statuses tracked by the per-sink counters,
// in wire-code order.
var CountedStatuses = []ChunkSchedulingStatus{
	ReadyForProcessing,
	QueuedForProcessing,
	Blocked,
	ReadyForDelivery,
	QueuedForDelivery,
}

// StatusFromByte maps a wire code back to a status. An unknown code means
// the cluster members disagree on the status table.
func StatusFromByte(b int8) (ChunkSchedulingStatus, error) {
	s := ChunkSchedulingStatus(b)
	if s < ReadyForProcessing || s > Done {
		return StatusAbsent, cerror.ErrUnknownSchedulingStatus.GenWithStackByArgs(b)
	}
	return s, nil
}

// Byte returns the wire code of the status.
func (s ChunkSchedulingStatus) Byte() int8 {
	return int8(s)
}

func (s ChunkSchedulingStatus) String() string {
	switch s {
	case StatusAbsent:
		return "ABSENT"
	case ReadyForProcessing:
		return "READY_FOR_PROCESSING"
	case QueuedForProcessing:
		return "QUEUED_FOR_PROCESSING"
	case Blocked:
		return "BLOCKED"
	case ReadyForDelivery:
		return "READY_FOR_DELIVERY"
	case QueuedForDelivery:
		return "QUEUED_FOR_DELIVERY"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("Unknown %d", int8(s))
	}
}

// MarshalJSON returns s as the JSON encoding of ChunkSchedulingStatus.
// Only used for pretty print in zap log.
func (s ChunkSchedulingStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// IsQueued returns true for the statuses guarded by a capacity ceiling.
func (s ChunkSchedulingStatus) IsQueued() bool {
	return s == QueuedForProcessing || s == QueuedForDelivery
}

// IsReady returns true if the chunk waits for admission into a queued status.
func (s ChunkSchedulingStatus) IsReady() bool {
	return s == ReadyForProcessing || s == ReadyForDelivery
}

// IsTerminal returns true if the chunk has completed all stages.
func (s ChunkSchedulingStatus) IsTerminal() bool {
	return s == Done
}

// IsCounted returns true if the per-sink counters keep a count for s.
func (s ChunkSchedulingStatus) IsCounted() bool {
	return s >= ReadyForProcessing && s <= QueuedForDelivery
}

// Queued returns the queued status a ready status is admitted into.
func (s ChunkSchedulingStatus) Queued() (ChunkSchedulingStatus, bool) {
	switch s {
	case ReadyForProcessing:
		return QueuedForProcessing, true
	case ReadyForDelivery:
		return QueuedForDelivery, true
	}
	return StatusAbsent, false
}

// Ready returns the ready status a queued status was admitted from.
func (s ChunkSchedulingStatus) Ready() (ChunkSchedulingStatus, bool) {
	switch s {
	case QueuedForProcessing:
		return ReadyForProcessing, true
	case QueuedForDelivery:
		return ReadyForDelivery, true
	}
	return StatusAbsent, false
}

var validTransitions = map[ChunkSchedulingStatus][]ChunkSchedulingStatus{
	ReadyForProcessing:  {QueuedForProcessing, Blocked, Done},
	QueuedForProcessing: {ReadyForDelivery, Blocked, ReadyForProcessing, Done},
	Blocked:             {ReadyForProcessing, ReadyForDelivery, Done},
	ReadyForDelivery:    {QueuedForDelivery, Done},
	QueuedForDelivery:   {Done, ReadyForDelivery},
}

// IsValidTransition returns true if a chunk may move from `from` to `to`.
func IsValidTransition(from, to ChunkSchedulingStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Stage returns the pipeline stage of a ready or queued status,
// "processing" or "delivery", and "" for the others.
func (s ChunkSchedulingStatus) Stage() string {
	switch s {
	case ReadyForProcessing, QueuedForProcessing:
		return "processing"
	case ReadyForDelivery, QueuedForDelivery:
		return "delivery"
	}
	return ""
}
