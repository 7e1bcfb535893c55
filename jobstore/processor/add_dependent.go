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

// AddDependent records that Key waits on the entry, so Key is released when
// the entry is done. Absent and done entries are left alone, and the caller
// must not wait on them.
type AddDependent struct {
	Key model.TrackingKey `msgpack:"key"`
}

// NewAddDependent creates an AddDependent processor.
func NewAddDependent(key model.TrackingKey) *AddDependent {
	return &AddDependent{Key: key}
}

// Process implements store.Processor.
func (p *AddDependent) Process(e TrackingEntry) Result {
	t := current(e)
	if t == nil || t.Status.IsTerminal() || t.Dependents.Contains(p.Key) {
		return unmodified(e)
	}
	if t.Dependents == nil {
		t.Dependents = model.NewKeySet()
	}
	t.Dependents.Add(p.Key)
	return commit(e, t, nil)
}

// Live returns true if the entry the result was produced from still has to
// finish, so that waiting on it is meaningful.
func (r Result) Live() bool {
	return r.Tracking != nil && !r.Tracking.Status.IsTerminal()
}
