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
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/model"
	cerrors "github.com/dataio/jobstore/pkg/errors"
)

// UpdateCounter applies signed deltas to the counters of one sink.
type UpdateCounter struct {
	Deltas model.Deltas `msgpack:"deltas"`
}

// NewUpdateCounter creates an UpdateCounter processor.
func NewUpdateCounter(deltas model.Deltas) *UpdateCounter {
	return &UpdateCounter{Deltas: deltas}
}

// CounterResult is the outcome of a counter processor.
type CounterResult struct {
	Modified bool
	// Underflow is true if a delta would have driven a count below zero.
	// The count was clamped at zero.
	Underflow bool
	// Counters is a snapshot of the counters after the run.
	Counters model.StatusCounters
}

// Process implements store.Processor.
func (p *UpdateCounter) Process(e CounterEntry) CounterResult {
	counters := currentCounters(e)
	res := CounterResult{}
	for status, delta := range p.Deltas {
		if delta == 0 {
			continue
		}
		res.Modified = true
		n := counters[status] + delta
		if n < 0 {
			log.Warn("status counter underflow, clamp it to zero",
				zap.Int64("count", counters[status]),
				zap.Int64("delta", delta),
				zap.Error(cerrors.ErrCounterUnderflow.GenWithStackByArgs(e.Key(), status)))
			res.Underflow = true
			n = 0
		}
		counters[status] = n
	}
	if res.Modified {
		e.SetValue(counters)
	}
	res.Counters = counters.Clone()
	return res
}

func currentCounters(e CounterEntry) model.StatusCounters {
	if !e.Exists() || e.Value() == nil {
		return model.NewStatusCounters()
	}
	return e.Value().Clone()
}
