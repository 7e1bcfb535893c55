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
	"sort"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	"github.com/dataio/jobstore/jobstore/store"
	cerrors "github.com/dataio/jobstore/pkg/errors"
)

// admission results
const (
	admitted       = "admitted"
	refused        = "refused"
	lost           = "lost"
	dispatchFailed = "dispatch-failed"
)

// tryDirect promotes a chunk that just became ready if few enough chunks of
// its sink wait in the same status. Otherwise it is left to a promotion pass.
func (s *Scheduler) tryDirect(ctx context.Context, t *model.DependencyTracking) error {
	if t == nil || !t.Status.IsReady() {
		return nil
	}
	counters, err := s.Counters(ctx, t.SinkID)
	if err != nil {
		return errors.Trace(err)
	}
	// The chunk itself is already counted.
	waiting := counters.Get(t.Status) - 1
	if waiting < 0 {
		waiting = 0
	}
	if !s.Limits().AllowsDirect(waiting) {
		log.Debug("too many ready chunks, wait for promotion pass",
			zap.Stringer("key", t.Key), zap.Int64("waiting", waiting))
		return nil
	}
	_, err = s.promote(ctx, t)
	return errors.Trace(err)
}

// promote admits a ready chunk into its queued status if the sink has
// capacity left, and dispatches it.
func (s *Scheduler) promote(ctx context.Context, t *model.DependencyTracking) (bool, error) {
	ready := t.Status
	queued, ok := ready.Queued()
	if !ok {
		return false, nil
	}
	max, ok := s.Limits().MaxFor(queued)
	if !ok {
		return false, nil
	}
	stage := ready.Stage()

	start := time.Now()
	reservation, err := store.ExecuteOnKey[model.SinkID, model.StatusCounters, processor.AdmissionResult](
		ctx, s.counters, t.SinkID, processor.NewReserveCapacity(ready, max))
	processorDuration.WithLabelValues("reserve-capacity").Observe(time.Since(start).Seconds())
	if err != nil {
		return false, errors.Trace(err)
	}
	if !reservation.Admitted {
		admissionCounter.WithLabelValues(stage, refused).Inc()
		return false, nil
	}
	observeCounters(t.SinkID, reservation.Counters)

	res, err := s.executeTracking(ctx, "update-status", t.Key,
		processor.NewCompareAndUpdateStatus(ready, queued))
	if err != nil {
		return false, errors.Trace(err)
	}
	if !res.Modified {
		// Someone else moved the chunk first, give the capacity back.
		admissionCounter.WithLabelValues(stage, lost).Inc()
		return false, errors.Trace(s.updateCounters(ctx, t.SinkID, model.Deltas{queued: -1, ready: 1}))
	}
	if err := s.announce(ctx, t.Key, res.Event); err != nil {
		return false, errors.Trace(err)
	}

	item := WorkItem{Key: t.Key, SinkID: t.SinkID, Status: queued}
	if err := s.dispatcher.Dispatch(ctx, item); err != nil {
		admissionCounter.WithLabelValues(stage, dispatchFailed).Inc()
		log.Warn("dispatch chunk failed, requeue it",
			zap.Stringer("status", queued),
			zap.Error(cerrors.WrapError(cerrors.ErrDispatchFailed, err, t.Key)))
		return false, errors.Trace(s.requeue(ctx, t.Key))
	}
	admissionCounter.WithLabelValues(stage, admitted).Inc()
	return true, nil
}

// PromoteSink admits as many ready chunks of a sink as its capacity allows,
// delivery first. It returns the number of chunks admitted.
func (s *Scheduler) PromoteSink(ctx context.Context, sinkID model.SinkID) (int, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	total := 0
	for _, ready := range []model.ChunkSchedulingStatus{model.ReadyForDelivery, model.ReadyForProcessing} {
		n, err := s.promoteStage(ctx, sinkID, ready)
		if err != nil {
			return total, errors.Trace(err)
		}
		total += n
	}
	return total, nil
}

func (s *Scheduler) promoteStage(
	ctx context.Context, sinkID model.SinkID, ready model.ChunkSchedulingStatus,
) (int, error) {
	queued, _ := ready.Queued()
	max, ok := s.Limits().MaxFor(queued)
	if !ok {
		return 0, nil
	}
	// The counters tell whether a scan of the tracking map can admit anything.
	counters, err := s.Counters(ctx, sinkID)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if counters.Get(ready) <= 0 || counters.Get(queued) >= max {
		return 0, nil
	}

	var candidates []*model.DependencyTracking
	err = s.tracking.Range(ctx, func(_ model.TrackingKey, t *model.DependencyTracking) bool {
		if t.SinkID == sinkID && t.Status == ready {
			candidates = append(candidates, t)
		}
		return true
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].Key.Less(candidates[j].Key)
	})
	if len(candidates) > s.promoteBatchSize {
		candidates = candidates[:s.promoteBatchSize]
	}

	promoted := 0
	for _, t := range candidates {
		ok, err := s.promote(ctx, t)
		if err != nil {
			return promoted, errors.Trace(err)
		}
		if !ok {
			counters, err := s.Counters(ctx, sinkID)
			if err != nil {
				return promoted, errors.Trace(err)
			}
			if counters.Get(queued) >= max {
				break
			}
			continue
		}
		promoted++
	}
	if promoted > 0 {
		log.Debug("sink promoted",
			zap.Int32("sinkID", sinkID), zap.Stringer("from", ready), zap.Int("promoted", promoted))
	}
	return promoted, nil
}

// promoteAll runs a promotion pass for every sink with ready chunks.
func (s *Scheduler) promoteAll(ctx context.Context) error {
	var sinks []model.SinkID
	err := s.counters.Range(ctx, func(sinkID model.SinkID, c model.StatusCounters) bool {
		if c.Get(model.ReadyForProcessing) > 0 || c.Get(model.ReadyForDelivery) > 0 {
			sinks = append(sinks, sinkID)
		}
		return true
	})
	if err != nil {
		return errors.Trace(err)
	}
	for _, sinkID := range sinks {
		if _, err := s.PromoteSink(ctx, sinkID); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Run runs promotion passes until ctx is done or the scheduler is closed.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.promoteInterval)
	defer ticker.Stop()
	log.Info("scheduler promotion loop started", zap.Duration("interval", s.promoteInterval))
	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-ticker.C:
			if s.closed.Load() {
				return nil
			}
			if s.unfinished.CompareAndSwap(true, false) {
				if err := s.sweepFinished(ctx); err != nil {
					log.Warn("finish done chunks failed", zap.Error(err))
				}
			}
			if err := s.promoteAll(ctx); err != nil {
				if errors.Cause(err) == context.Canceled {
					return errors.Trace(err)
				}
				log.Warn("promotion pass failed", zap.Error(err))
			}
		}
	}
}
