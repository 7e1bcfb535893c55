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

const (
	// DefaultMaxQueued is the default capacity of a queued status per sink.
	DefaultMaxQueued = 1000
	// DefaultTransitionToDirectMark is the default direct promotion threshold.
	DefaultTransitionToDirectMark = 100
)

// Limits holds the admission thresholds. A Limits value is never mutated
// after it has been handed to a scheduler; use Clone and replace it instead.
type Limits struct {
	// Max is the capacity ceiling of each queued status per sink.
	Max map[ChunkSchedulingStatus]int64
	// TransitionToDirectMark: a chunk becoming ready is promoted at once when
	// fewer than this many chunks of its sink wait in the same ready status.
	TransitionToDirectMark int64
}

// DefaultLimits returns the default limits.
func DefaultLimits() *Limits {
	return &Limits{
		Max: map[ChunkSchedulingStatus]int64{
			QueuedForProcessing: DefaultMaxQueued,
			QueuedForDelivery:   DefaultMaxQueued,
		},
		TransitionToDirectMark: DefaultTransitionToDirectMark,
	}
}

// MaxFor returns the capacity of s. Statuses without a ceiling return false.
func (l *Limits) MaxFor(s ChunkSchedulingStatus) (int64, bool) {
	if !s.IsQueued() {
		return 0, false
	}
	max, ok := l.Max[s]
	return max, ok
}

// AllowsDirect returns true if a sink with `waiting` chunks in a ready
// status may promote a newly ready chunk without staging it.
func (l *Limits) AllowsDirect(waiting int64) bool {
	return waiting < l.TransitionToDirectMark
}

// Clone returns a deep copy.
func (l *Limits) Clone() *Limits {
	c := &Limits{
		Max:                    make(map[ChunkSchedulingStatus]int64, len(l.Max)),
		TransitionToDirectMark: l.TransitionToDirectMark,
	}
	for s, max := range l.Max {
		c.Max[s] = max
	}
	return c
}

// WithMax returns a copy of l with the capacity of s replaced.
func (l *Limits) WithMax(s ChunkSchedulingStatus, max int64) *Limits {
	c := l.Clone()
	c.Max[s] = max
	return c
}
