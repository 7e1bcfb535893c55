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

// Package processor contains the entry processors that mutate the tracking
// and counter maps. Every processor is a pure function of the entry it is
// given, so the maps may run it more than once.
package processor

import (
	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/store"
)

type (
	// TrackingEntry is an entry of the dependency tracking map.
	TrackingEntry = store.Entry[model.TrackingKey, *model.DependencyTracking]
	// CounterEntry is an entry of the per-sink counters map.
	CounterEntry = store.Entry[model.SinkID, model.StatusCounters]
)

// Result is the outcome of a processor run against a tracking entry.
type Result struct {
	// Modified is true if the entry was written back.
	Modified bool
	// Event is non-nil if the chunk changed status.
	Event *model.StatusChangeEvent
	// Tracking is a snapshot of the entry after the run, nil if the entry is
	// absent or was removed.
	Tracking *model.DependencyTracking
	// Purged is true if the run removed the entry.
	Purged bool
}

func unmodified(e TrackingEntry) Result {
	if !e.Exists() || e.Value() == nil {
		return Result{}
	}
	return Result{Tracking: e.Value().Clone()}
}

func commit(e TrackingEntry, t *model.DependencyTracking, event *model.StatusChangeEvent) Result {
	e.SetValue(t)
	return Result{Modified: true, Event: event, Tracking: t.Clone()}
}

func purge(e TrackingEntry) Result {
	e.Remove()
	return Result{Modified: true, Purged: true}
}

// current returns a private copy of the entry value, or nil if the entry is
// missing.
func current(e TrackingEntry) *model.DependencyTracking {
	if !e.Exists() {
		return nil
	}
	return e.Value().Clone()
}
