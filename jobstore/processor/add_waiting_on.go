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

// AddTerminationWaitingOn adds keys to the set of chunks an entry waits on.
// A chunk that was ready for processing becomes blocked.
type AddTerminationWaitingOn struct {
	Keys model.KeySet `msgpack:"keys"`
}

// NewAddTerminationWaitingOn creates an AddTerminationWaitingOn processor.
func NewAddTerminationWaitingOn(keys ...model.TrackingKey) *AddTerminationWaitingOn {
	return &AddTerminationWaitingOn{Keys: model.NewKeySet(keys...)}
}

// Process implements store.Processor.
func (p *AddTerminationWaitingOn) Process(e TrackingEntry) Result {
	t := current(e)
	if t == nil || t.Status.IsTerminal() {
		return unmodified(e)
	}
	union := t.WaitingOn.Union(p.Keys)
	if union.Equal(t.WaitingOn) {
		return unmodified(e)
	}
	t.WaitingOn = union

	var event *model.StatusChangeEvent
	if t.Status == model.ReadyForProcessing {
		event = model.NewStatusChangeEvent(t.SinkID, t.Status, model.Blocked)
		t.Status = model.Blocked
		t.BlockedFor = model.ReadyForProcessing
	}
	return commit(e, t, event)
}
