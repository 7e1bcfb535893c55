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
package config

import (
	"time"

	"github.com/dataio/jobstore/jobstore/model"
	cerrors "github.com/dataio/jobstore/pkg/errors"
)

// SchedulerConfig configs the chunk scheduler.
type SchedulerConfig struct {
	MaxQueuedForProcessing int          `toml:"max-queued-for-processing" json:"max-queued-for-processing"`
	MaxQueuedForDelivery   int          `toml:"max-queued-for-delivery" json:"max-queued-for-delivery"`
	TransitionToDirectMark int          `toml:"transition-to-direct-mark" json:"transition-to-direct-mark"`
	PromoteInterval        TomlDuration `toml:"promote-interval" json:"promote-interval"`
	PromoteBatchSize       int          `toml:"promote-batch-size" json:"promote-batch-size"`
	// EventTTL is the lease of published status change events, in seconds.
	EventTTL int64 `toml:"event-ttl" json:"event-ttl"`
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *SchedulerConfig) ValidateAndAdjust() error {
	if c.MaxQueuedForProcessing <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("max-queued-for-processing must be larger than 0")
	}
	if c.MaxQueuedForDelivery <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("max-queued-for-delivery must be larger than 0")
	}
	if c.TransitionToDirectMark < 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("transition-to-direct-mark must not be negative")
	}
	if time.Duration(c.PromoteInterval) <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("promote-interval must be larger than 0")
	}
	if c.PromoteBatchSize <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("promote-batch-size must be larger than 0")
	}
	if c.EventTTL <= 0 {
		return cerrors.ErrInvalidServerOption.GenWithStackByArgs("event-ttl must be larger than 0")
	}
	return nil
}

// Limits converts the capacity settings into scheduler limits.
func (c *SchedulerConfig) Limits() *model.Limits {
	limits := model.DefaultLimits().
		WithMax(model.QueuedForProcessing, int64(c.MaxQueuedForProcessing)).
		WithMax(model.QueuedForDelivery, int64(c.MaxQueuedForDelivery))
	limits.TransitionToDirectMark = int64(c.TransitionToDirectMark)
	return limits
}
