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

package processor

import (
	"github.com/dataio/jobstore/jobstore/model"
)

// ReserveCapacity moves one unit of a sink's counters from a ready status to
// the queued status it is admitted into. Nothing moves if the queued status
// is full or no chunk is counted as ready.
type ReserveCapacity struct {
	From model.ChunkSchedulingStatus `msgpack:"from"`
	To   model.ChunkSchedulingStatus `msgpack:"to"`
	Max  int64                       `msgpack:"max"`
}

// NewReserveCapacity creates a ReserveCapacity processor admitting into the
// queued status of ready.
func NewReserveCapacity(ready model.ChunkSchedulingStatus, max int64) *ReserveCapacity {
	to, _ := ready.Queued()
	return &ReserveCapacity{From: ready, To: to, Max: max}
}

// AdmissionResult is the outcome of a ReserveCapacity run.
type AdmissionResult struct {
	Admitted bool
	// Count is the count of the queued status after the run.
	Count int64
	// Counters is a snapshot of the counters after the run.
	Counters model.StatusCounters
}

// Process implements store.Processor.
func (p *ReserveCapacity) Process(e CounterEntry) AdmissionResult {
	counters := currentCounters(e)
	if !p.To.IsQueued() || counters[p.From] <= 0 || counters[p.To] >= p.Max {
		return AdmissionResult{Count: counters[p.To], Counters: counters}
	}
	counters[p.From]--
	counters[p.To]++
	e.SetValue(counters)
	return AdmissionResult{Admitted: true, Count: counters[p.To], Counters: counters.Clone()}
}
