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

// StatusCounters counts the chunks of one sink in each status.
type StatusCounters map[ChunkSchedulingStatus]int64

// NewStatusCounters returns counters with every counted status at zero.
func NewStatusCounters() StatusCounters {
	c := make(StatusCounters, len(CountedStatuses))
	for _, s := range CountedStatuses {
		c[s] = 0
	}
	return c
}

// Get returns the count of s.
func (c StatusCounters) Get(s ChunkSchedulingStatus) int64 {
	return c[s]
}

// Total returns the number of outstanding chunks.
func (c StatusCounters) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}

// Clone returns a copy.
func (c StatusCounters) Clone() StatusCounters {
	res := make(StatusCounters, len(c))
	for s, n := range c {
		res[s] = n
	}
	return res
}

// Deltas are signed changes to apply to StatusCounters.
type Deltas map[ChunkSchedulingStatus]int64

// Add accumulates n into s.
func (d Deltas) Add(s ChunkSchedulingStatus, n int64) {
	if !s.IsCounted() {
		return
	}
	d[s] += n
	if d[s] == 0 {
		delete(d, s)
	}
}

// IsZero returns true if applying d changes nothing.
func (d Deltas) IsZero() bool {
	for _, n := range d {
		if n != 0 {
			return false
		}
	}
	return true
}
