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

// Package scheduler tracks the dependencies between the chunks of DataIO
// jobs and admits ready chunks into processing and delivery, bounded by the
// capacity of their sinks.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	"github.com/dataio/jobstore/jobstore/store"
	cerrors "github.com/dataio/jobstore/pkg/errors"
)

const (
	defaultPromoteInterval  = time.Second
	defaultPromoteBatchSize = 1000
)

type (
	// TrackingMap holds the dependency tracking entries.
	TrackingMap = store.Map[model.TrackingKey, *model.DependencyTracking]
	// CountersMap holds the per-sink status counters.
	CountersMap = store.Map[model.SinkID, model.StatusCounters]
)

// Scheduler is the dependency tracking service. All of its state lives in
// the two maps, so any number of schedulers may share them.
type Scheduler struct {
	tracking   TrackingMap
	counters   CountersMap
	dispatcher Dispatcher
	listeners  []EventListener
	publisher  EventPublisher

	limits           atomic.Pointer[model.Limits]
	clock            clock.Clock
	promoteInterval  time.Duration
	promoteBatchSize int

	closed atomic.Bool
	// unfinished is set when done chunks may be left in the tracking map.
	unfinished atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLimits sets the initial admission limits.
func WithLimits(limits *model.Limits) Option {
	return func(s *Scheduler) {
		s.limits.Store(limits.Clone())
	}
}

// WithClock sets the clock of the promotion loop.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithEventListener adds a listener of status changes.
func WithEventListener(l EventListener) Option {
	return func(s *Scheduler) {
		s.listeners = append(s.listeners, l)
	}
}

// WithEventPublisher sets where status changes are published for the other
// members of the cluster.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Scheduler) {
		s.publisher = p
	}
}

// WithPromoteInterval sets the interval of the promotion loop.
func WithPromoteInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.promoteInterval = d
	}
}

// WithPromoteBatchSize bounds the chunks one promotion pass considers per
// sink and stage.
func WithPromoteBatchSize(n int) Option {
	return func(s *Scheduler) {
		s.promoteBatchSize = n
	}
}

// New creates a Scheduler.
func New(tracking TrackingMap, counters CountersMap, dispatcher Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		tracking:         tracking,
		counters:         counters,
		dispatcher:       dispatcher,
		clock:            clock.New(),
		promoteInterval:  defaultPromoteInterval,
		promoteBatchSize: defaultPromoteBatchSize,
	}
	s.limits.Store(model.DefaultLimits())
	// A previous process may have stopped before purging done chunks.
	s.unfinished.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the current admission limits. The returned value must not
// be modified.
func (s *Scheduler) Limits() *model.Limits {
	return s.limits.Load()
}

// SetLimits replaces the admission limits. Chunks already queued above a
// lowered ceiling stay queued, new admissions wait until the count drops.
func (s *Scheduler) SetLimits(limits *model.Limits) {
	s.limits.Store(limits.Clone())
	log.Info("scheduler limits changed",
		zap.Int64("maxQueuedForProcessing", limits.Max[model.QueuedForProcessing]),
		zap.Int64("maxQueuedForDelivery", limits.Max[model.QueuedForDelivery]),
		zap.Int64("transitionToDirectMark", limits.TransitionToDirectMark))
}

// Close stops the scheduler. Subsequent operations fail with
// ErrSchedulerClosed.
func (s *Scheduler) Close() {
	s.closed.Store(true)
}

func (s *Scheduler) checkClosed() error {
	if s.closed.Load() {
		return cerrors.ErrSchedulerClosed.GenWithStackByArgs()
	}
	return nil
}

// Counters returns the status counters of a sink.
func (s *Scheduler) Counters(ctx context.Context, sinkID model.SinkID) (model.StatusCounters, error) {
	c, ok, err := s.counters.Get(ctx, sinkID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !ok {
		return model.NewStatusCounters(), nil
	}
	return c, nil
}

// Tracking returns the tracking entry of key.
func (s *Scheduler) Tracking(
	ctx context.Context, key model.TrackingKey,
) (*model.DependencyTracking, bool, error) {
	return s.tracking.Get(ctx, key)
}

// applyTracking runs p against the entry of key. Status changes it makes
// are accounted in the counters and announced.
func (s *Scheduler) applyTracking(
	ctx context.Context, name string, key model.TrackingKey,
	p store.Processor[model.TrackingKey, *model.DependencyTracking, processor.Result],
) (processor.Result, error) {
	res, err := s.executeTracking(ctx, name, key, p)
	if err != nil {
		return res, errors.Trace(err)
	}
	if res.Event != nil {
		if err := s.account(ctx, key, res.Event); err != nil {
			return res, errors.Trace(err)
		}
	}
	return res, nil
}

func (s *Scheduler) executeTracking(
	ctx context.Context, name string, key model.TrackingKey,
	p store.Processor[model.TrackingKey, *model.DependencyTracking, processor.Result],
) (processor.Result, error) {
	start := time.Now()
	res, err := store.ExecuteOnKey(ctx, s.tracking, key, p)
	processorDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return res, errors.Trace(err)
}

func (s *Scheduler) updateCounters(
	ctx context.Context, sinkID model.SinkID, deltas model.Deltas,
) error {
	start := time.Now()
	res, err := store.ExecuteOnKey[model.SinkID, model.StatusCounters, processor.CounterResult](
		ctx, s.counters, sinkID, processor.NewUpdateCounter(deltas))
	processorDuration.WithLabelValues("update-counter").Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Trace(err)
	}
	if res.Underflow {
		log.Warn("unbalanced status counter deltas",
			zap.Int32("sinkID", sinkID), zap.Any("deltas", deltas))
	}
	observeCounters(sinkID, res.Counters)
	return nil
}

// account applies the counter deltas of events and announces them.
func (s *Scheduler) account(
	ctx context.Context, key model.TrackingKey, events ...*model.StatusChangeEvent,
) error {
	for sinkID, deltas := range model.CounterDeltas(events...) {
		if err := s.updateCounters(ctx, sinkID, deltas); err != nil {
			return errors.Trace(err)
		}
	}
	return s.announce(ctx, key, events...)
}

// announce tells listeners and the other members about events that are
// already accounted.
func (s *Scheduler) announce(
	ctx context.Context, key model.TrackingKey, events ...*model.StatusChangeEvent,
) error {
	for _, e := range events {
		statusChangeCounter.WithLabelValues(
			strconv.Itoa(int(e.SinkID)), e.OldStatus.String(), e.NewStatus.String()).Inc()
		log.Debug("chunk status changed",
			zap.Stringer("key", key), zap.Stringer("event", e))
		for _, l := range s.listeners {
			l.OnStatusChange(key, e)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events...); err != nil {
			// The event log is advisory, the maps stay authoritative.
			log.Warn("publish status change events failed",
				zap.Stringer("key", key), zap.Error(err))
		}
	}
	return nil
}

func observeCounters(sinkID model.SinkID, counters model.StatusCounters) {
	sink := strconv.Itoa(int(sinkID))
	for _, status := range model.CountedStatuses {
		chunkStatusGauge.WithLabelValues(sink, status.String()).Set(float64(counters.Get(status)))
	}
}
