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

// RemoveWaitingOn removes one key from the set of chunks an entry waits on.
// Draining the set releases a blocked chunk.
type RemoveWaitingOn struct {
	Key model.TrackingKey `msgpack:"key"`
}

// NewRemoveWaitingOn creates a RemoveWaitingOn processor.
func NewRemoveWaitingOn(key model.TrackingKey) *RemoveWaitingOn {
	return &RemoveWaitingOn{Key: key}
}

// Process implements store.Processor.
func (p *RemoveWaitingOn) Process(e TrackingEntry) Result {
	t := current(e)
	if t == nil || !t.WaitingOn.Remove(p.Key) {
		return unmodified(e)
	}
	if t.IsWaiting() || t.Status != model.Blocked {
		return commit(e, t, nil)
	}

	target := t.BlockedFor
	if !target.IsReady() {
		target = model.ReadyForDelivery
	}
	event := model.NewStatusChangeEvent(t.SinkID, t.Status, target)
	t.Status = target
	t.BlockedFor = model.StatusAbsent
	return commit(e, t, event)
}
