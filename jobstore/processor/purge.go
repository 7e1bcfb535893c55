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

// Purge removes a done entry that waits on nothing.
type Purge struct{}

// NewPurge creates a Purge processor.
func NewPurge() *Purge {
	return &Purge{}
}

// Process implements store.Processor.
func (p *Purge) Process(e TrackingEntry) Result {
	t := current(e)
	if t == nil || !t.Purgeable() {
		return unmodified(e)
	}
	return purge(e)
}
