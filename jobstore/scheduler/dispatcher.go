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

package scheduler

import (
	"context"

	"github.com/dataio/jobstore/jobstore/model"
)

// WorkItem is a chunk admitted into a queued status, ready to be handed to
// a worker.
type WorkItem struct {
	Key    model.TrackingKey           `json:"key"`
	SinkID model.SinkID                `json:"sink-id"`
	Status model.ChunkSchedulingStatus `json:"status"`
}

// Dispatcher hands admitted chunks to the processing or delivery workers.
// A chunk whose dispatch fails is requeued.
type Dispatcher interface {
	Dispatch(ctx context.Context, item WorkItem) error
}

// DispatcherFunc adapts a function to a Dispatcher.
type DispatcherFunc func(ctx context.Context, item WorkItem) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, item WorkItem) error {
	return f(ctx, item)
}

// EventListener observes every status change made through the scheduler.
// It is called synchronously, so it must not block.
type EventListener interface {
	OnStatusChange(key model.TrackingKey, event *model.StatusChangeEvent)
}

// EventListenerFunc adapts a function to an EventListener.
type EventListenerFunc func(key model.TrackingKey, event *model.StatusChangeEvent)

// OnStatusChange implements EventListener.
func (f EventListenerFunc) OnStatusChange(key model.TrackingKey, event *model.StatusChangeEvent) {
	f(key, event)
}

// EventPublisher shares status changes with other members of the cluster.
type EventPublisher interface {
	Publish(ctx context.Context, events ...*model.StatusChangeEvent) error
}
