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
	"math"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/model"
	"github.com/dataio/jobstore/jobstore/processor"
	"github.com/dataio/jobstore/jobstore/store"
	cerrors "github.com/dataio/jobstore/pkg/errors"
)

// ChunkDescriptor describes a chunk to register.
type ChunkDescriptor struct {
	Key    model.TrackingKey
	SinkID model.SinkID
	// WaitingOn lists the chunks that must be delivered first, as computed
	// by sequence analysis.
	WaitingOn []model.TrackingKey
}

// Register starts tracking a chunk. Dependencies that are no longer tracked
// or already done are dropped.
func (s *Scheduler) Register(ctx context.Context, desc ChunkDescriptor) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	waitingOn, err := s.link(ctx, desc.Key, desc.WaitingOn)
	if err != nil {
		return errors.Trace(err)
	}

	var (
		tracking *model.DependencyTracking
		exists   bool
	)
	err = s.tracking.Update(ctx, desc.Key, func(e store.Entry[model.TrackingKey, *model.DependencyTracking]) {
		exists = e.Exists()
		if exists {
			return
		}
		tracking = model.NewDependencyTracking(desc.Key, desc.SinkID, waitingOn)
		e.SetValue(tracking.Clone())
	})
	if err != nil {
		return errors.Trace(err)
	}
	if exists {
		return cerrors.ErrChunkAlreadyTracked.GenWithStackByArgs(desc.Key)
	}
	log.Debug("chunk registered",
		zap.Stringer("key", desc.Key),
		zap.Int32("sinkID", desc.SinkID),
		zap.Any("waitingOn", tracking.WaitingOn))

	event := model.NewStatusChangeEvent(desc.SinkID, model.StatusAbsent, tracking.Status)
	if err := s.account(ctx, desc.Key, event); err != nil {
		return errors.Trace(err)
	}
	if tracking.IsWaiting() {
		// A dependency may have finished between the filter and the insert.
		return s.releaseFinished(ctx, desc.Key, tracking.WaitingOn)
	}
	return s.tryDirect(ctx, tracking)
}

// AddTerminationWaitingOn makes key wait on keys as well. Keys that are not
// tracked or already done are ignored.
func (s *Scheduler) AddTerminationWaitingOn(
	ctx context.Context, key model.TrackingKey, keys ...model.TrackingKey,
) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	waitingOn, err := s.link(ctx, key, keys)
	if err != nil {
		return errors.Trace(err)
	}
	if len(waitingOn) == 0 {
		return nil
	}
	res, err := s.applyTracking(ctx, "add-termination-waiting-on", key,
		&processor.AddTerminationWaitingOn{Keys: waitingOn})
	if err != nil {
		return errors.Trace(err)
	}
	if !res.Modified {
		return nil
	}
	return s.releaseFinished(ctx, key, waitingOn)
}

// ChunkProcessed reports that a chunk finished processing. It becomes ready
// for delivery, or blocked if it still waits on other chunks.
func (s *Scheduler) ChunkProcessed(ctx context.Context, key model.TrackingKey) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	res, err := s.applyTracking(ctx, "update-status", key,
		processor.NewCompareAndUpdateStatus(model.QueuedForProcessing, model.ReadyForDelivery))
	if err != nil {
		return errors.Trace(err)
	}
	if !res.Modified {
		log.Debug("ignore stale processed notification", zap.Stringer("key", key))
		return nil
	}
	if err := s.tryDirect(ctx, res.Tracking); err != nil {
		return errors.Trace(err)
	}
	_, err = s.promoteStage(ctx, res.Tracking.SinkID, model.ReadyForProcessing)
	return errors.Trace(err)
}

// ChunkDelivered reports that a chunk was delivered. The chunk is done, and
// the chunks waiting on it are released. A notification for a chunk that is
// done but not yet purged resumes the release.
func (s *Scheduler) ChunkDelivered(ctx context.Context, key model.TrackingKey) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	res, err := s.applyTracking(ctx, "update-status", key,
		processor.NewCompareAndUpdateStatus(model.QueuedForDelivery, model.Done))
	if err != nil {
		return errors.Trace(err)
	}
	if !res.Modified {
		if res.Tracking == nil || res.Tracking.Status != model.Done {
			log.Debug("ignore stale delivered notification", zap.Stringer("key", key))
			return nil
		}
		log.Info("resume release of delivered chunk", zap.Stringer("key", key))
	}
	if err := s.finish(ctx, key); err != nil {
		return errors.Trace(err)
	}
	_, err = s.promoteStage(ctx, res.Tracking.SinkID, model.ReadyForDelivery)
	return errors.Trace(err)
}

// Requeue returns a queued chunk to its ready status, typically because it
// could not be dispatched. The next promotion pass admits it again.
func (s *Scheduler) Requeue(ctx context.Context, key model.TrackingKey) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	return s.requeue(ctx, key)
}

func (s *Scheduler) requeue(ctx context.Context, key model.TrackingKey) error {
	tracking, ok, err := s.tracking.Get(ctx, key)
	if err != nil || !ok {
		return errors.Trace(err)
	}
	ready, ok := tracking.Status.Ready()
	if !ok {
		return nil
	}
	_, err = s.applyTracking(ctx, "update-status", key,
		processor.NewCompareAndUpdateStatus(tracking.Status, ready))
	return errors.Trace(err)
}

// AbortJob finishes every chunk of a job and releases the chunks of other
// jobs waiting on them.
func (s *Scheduler) AbortJob(ctx context.Context, jobID model.JobID) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	var keys []model.TrackingKey
	err := s.rangeJob(ctx, jobID, func(k model.TrackingKey, _ *model.DependencyTracking) bool {
		keys = append(keys, k)
		return true
	})
	if err != nil {
		return errors.Trace(err)
	}

	var (
		aborted  int
		finished []model.TrackingKey
	)
	sinks := make(map[model.SinkID]struct{})
	for _, k := range keys {
		res, err := s.applyTracking(ctx, "update-status", k, processor.NewUpdateStatus(model.Done))
		if err != nil {
			return errors.Trace(err)
		}
		if res.Modified {
			aborted++
		}
		// Chunks already done by an interrupted call are finished again.
		if res.Tracking != nil && res.Tracking.Status == model.Done {
			finished = append(finished, k)
			sinks[res.Tracking.SinkID] = struct{}{}
		}
	}
	log.Info("job aborted", zap.Int32("jobID", jobID), zap.Int("chunks", aborted))
	if err := s.finish(ctx, finished...); err != nil {
		return errors.Trace(err)
	}
	for sinkID := range sinks {
		if _, err := s.PromoteSink(ctx, sinkID); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// link records key as a dependent of keys and returns the keys it has to
// wait on, leaving out key itself and the keys that are absent or done.
func (s *Scheduler) link(
	ctx context.Context, key model.TrackingKey, keys []model.TrackingKey,
) (model.KeySet, error) {
	res := model.NewKeySet()
	for _, k := range keys {
		if k == key || res.Contains(k) {
			continue
		}
		linked, err := s.executeTracking(ctx, "add-dependent", k, processor.NewAddDependent(key))
		if err != nil {
			return nil, errors.Trace(err)
		}
		if linked.Live() {
			res.Add(k)
		}
	}
	return res, nil
}

// releaseFinished removes from the waiting set of key the keys that are no
// longer tracked or already done.
func (s *Scheduler) releaseFinished(
	ctx context.Context, key model.TrackingKey, waitingOn model.KeySet,
) error {
	for _, dep := range waitingOn.Sorted() {
		t, ok, err := s.tracking.Get(ctx, dep)
		if err != nil {
			return errors.Trace(err)
		}
		if ok && !t.Status.IsTerminal() {
			continue
		}
		if err := s.removeWaitingOn(ctx, key, dep); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// finish releases the dependents of done chunks, then purges them. A done
// chunk stays in the map until finish succeeds, so a failed call is resumed
// by a redelivered notification or by the next promotion pass.
func (s *Scheduler) finish(ctx context.Context, keys ...model.TrackingKey) error {
	for _, k := range keys {
		if err := s.finishOne(ctx, k); err != nil {
			s.unfinished.Store(true)
			return errors.Trace(err)
		}
	}
	return nil
}

func (s *Scheduler) finishOne(ctx context.Context, key model.TrackingKey) error {
	t, ok, err := s.tracking.Get(ctx, key)
	if err != nil {
		return errors.Trace(err)
	}
	// AddDependent refuses done chunks, so t.Dependents is final.
	if !ok || t.Status != model.Done {
		return nil
	}
	for _, dependent := range t.Dependents.Sorted() {
		if err := s.removeWaitingOn(ctx, dependent, key); err != nil {
			return errors.Trace(err)
		}
	}
	_, err = s.executeTracking(ctx, "purge", key, processor.NewPurge())
	return errors.Trace(err)
}

// sweepFinished finishes every done chunk still in the map.
func (s *Scheduler) sweepFinished(ctx context.Context) error {
	var done []model.TrackingKey
	err := s.tracking.Range(ctx, func(k model.TrackingKey, t *model.DependencyTracking) bool {
		if t.Status == model.Done {
			done = append(done, k)
		}
		return true
	})
	if err != nil {
		s.unfinished.Store(true)
		return errors.Trace(err)
	}
	if len(done) > 0 {
		log.Info("finish leftover done chunks", zap.Int("chunks", len(done)))
	}
	return errors.Trace(s.finish(ctx, done...))
}

func (s *Scheduler) removeWaitingOn(ctx context.Context, key, on model.TrackingKey) error {
	res, err := s.applyTracking(ctx, "remove-waiting-on", key, processor.NewRemoveWaitingOn(on))
	if err != nil {
		return errors.Trace(err)
	}
	if res.Event == nil {
		return nil
	}
	return s.tryDirect(ctx, res.Tracking)
}

// rangeJob calls fn on every entry of a job in key order.
func (s *Scheduler) rangeJob(
	ctx context.Context, jobID model.JobID, fn func(model.TrackingKey, *model.DependencyTracking) bool,
) error {
	ordered, ok := s.tracking.(store.OrderedMap[model.TrackingKey, *model.DependencyTracking])
	if ok && jobID < math.MaxInt32 {
		return ordered.AscendRange(ctx,
			model.NewTrackingKey(jobID, math.MinInt32), model.NewTrackingKey(jobID+1, math.MinInt32), fn)
	}
	return s.tracking.Range(ctx, func(k model.TrackingKey, t *model.DependencyTracking) bool {
		if k.JobID != jobID {
			return true
		}
		return fn(k, t)
	})
}
