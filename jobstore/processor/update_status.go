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

// UpdateStatus moves an entry to a new status. Stale or illegal requests are
// ignored, so redelivered messages never corrupt the entry. A done entry is
// kept until Purge removes it.
type UpdateStatus struct {
	// Expected, if set, is the status the entry must be in.
	Expected  *model.ChunkSchedulingStatus `msgpack:"expected"`
	NewStatus model.ChunkSchedulingStatus  `msgpack:"status"`
}

// NewUpdateStatus creates an unconditional UpdateStatus processor.
func NewUpdateStatus(newStatus model.ChunkSchedulingStatus) *UpdateStatus {
	return &UpdateStatus{NewStatus: newStatus}
}

// NewCompareAndUpdateStatus creates an UpdateStatus processor that only
// applies when the entry is in expected.
func NewCompareAndUpdateStatus(expected, newStatus model.ChunkSchedulingStatus) *UpdateStatus {
	return &UpdateStatus{Expected: &expected, NewStatus: newStatus}
}

// Process implements store.Processor.
func (p *UpdateStatus) Process(e TrackingEntry) Result {
	t := current(e)
	if t == nil {
		return unmodified(e)
	}
	if p.Expected != nil && *p.Expected != t.Status {
		return unmodified(e)
	}
	if t.Status == p.NewStatus || !model.IsValidTransition(t.Status, p.NewStatus) {
		return unmodified(e)
	}

	target := p.NewStatus
	switch {
	case target == model.Done:
		t.WaitingOn = model.NewKeySet()
		t.BlockedFor = model.StatusAbsent
	case target == model.ReadyForDelivery && t.IsWaiting():
		if t.Status == model.Blocked {
			// Still waiting, only the status to return to changes.
			if t.BlockedFor == model.ReadyForDelivery {
				return unmodified(e)
			}
			t.BlockedFor = model.ReadyForDelivery
			return commit(e, t, nil)
		}
		target = model.Blocked
		t.BlockedFor = model.ReadyForDelivery
	case target.IsReady() && t.Status == model.Blocked:
		if t.IsWaiting() {
			return unmodified(e)
		}
		t.BlockedFor = model.StatusAbsent
	}

	event := model.NewStatusChangeEvent(t.SinkID, t.Status, target)
	t.Status = target
	return commit(e, t, event)
}
