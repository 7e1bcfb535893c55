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

package etcdstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientV3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/codec"
	"github.com/dataio/jobstore/jobstore/model"
	cerrors "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/etcd"
)

// DefaultEventTTL is the lifetime of a published event in seconds.
const DefaultEventTTL = 60

// EventLog shares status change events between the members of a cluster.
// Events are written under the events prefix with a lease, so the log trims
// itself. A lease is shared by the events of half its TTL, then replaced.
type EventLog struct {
	client  *etcd.Client
	prefix  string
	source  string
	ttl     int64
	seq     atomic.Uint64
	factory *codec.Factory
	clock   clock.Clock

	mu       sync.Mutex
	lease    clientV3.LeaseID
	rotateAt time.Time
	closed   bool
}

// PublishedEvent is an event read back from the log.
type PublishedEvent struct {
	// Source identifies the EventLog that published the event.
	Source string
	Event  *model.StatusChangeEvent
}

// NewEventLog creates an EventLog with a fresh source id.
func NewEventLog(client *etcd.Client, clusterID string, ttl int64, factory *codec.Factory) *EventLog {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventLog{
		client:  client,
		prefix:  etcd.EventsPrefix(clusterID),
		source:  uuid.New().String(),
		ttl:     ttl,
		factory: factory,
		clock:   clock.New(),
	}
}

// Source returns the id this log publishes under.
func (l *EventLog) Source() string {
	return l.source
}

// Publish writes events in one transaction.
func (l *EventLog) Publish(ctx context.Context, events ...*model.StatusChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	lease, err := l.currentLease(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	ops := make([]clientV3.Op, 0, len(events))
	for _, e := range events {
		data, err := l.factory.Encode(e)
		if err != nil {
			return errors.Trace(err)
		}
		ops = append(ops, clientV3.OpPut(l.eventKey(l.seq.Inc()), string(data), clientV3.WithLease(lease)))
	}
	if _, err := l.client.Txn(ctx, nil, ops, nil); err != nil {
		return cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	publishedEventsCounter.Add(float64(len(events)))
	return nil
}

func (l *EventLog) eventKey(seq uint64) string {
	return fmt.Sprintf("%s%s/%016x", l.prefix, l.source, seq)
}

// currentLease returns the lease new events are written with, granting a
// new one once the current lease is half way through its TTL.
func (l *EventLog) currentLease(ctx context.Context) (clientV3.LeaseID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return clientV3.NoLease, cerrors.ErrEtcdSessionDone.GenWithStackByArgs()
	}
	now := l.clock.Now()
	if l.lease != clientV3.NoLease && now.Before(l.rotateAt) {
		return l.lease, nil
	}
	resp, err := l.client.Grant(ctx, l.ttl)
	if err != nil {
		return clientV3.NoLease, cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	log.Debug("event log lease granted",
		zap.String("source", l.source), zap.Int64("lease", int64(resp.ID)), zap.Int64("ttl", l.ttl))
	l.lease = resp.ID
	l.rotateAt = now.Add(time.Duration(l.ttl) * time.Second / 2)
	return l.lease, nil
}

// Close revokes the current lease, dropping the events written with it.
// Publish fails with ErrEtcdSessionDone afterwards.
func (l *EventLog) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.lease == clientV3.NoLease {
		return nil
	}
	lease := l.lease
	l.lease = clientV3.NoLease
	if _, err := l.client.Revoke(ctx, lease); err != nil {
		return cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	return nil
}

// Watch streams the events published after the call, by any source, in
// publication order. The channel is closed when ctx is done.
func (l *EventLog) Watch(ctx context.Context) (<-chan PublishedEvent, error) {
	resp, err := l.client.Get(ctx, l.prefix, clientV3.WithPrefix(), clientV3.WithCountOnly())
	if err != nil {
		return nil, cerrors.WrapError(cerrors.ErrEtcdAPIError, err)
	}
	watchCh := l.client.Watch(ctx, l.prefix, "event-log",
		clientV3.WithPrefix(), clientV3.WithRev(resp.Header.Revision+1))

	out := make(chan PublishedEvent, 64)
	go func() {
		defer close(out)
		for watchResp := range watchCh {
			if err := watchResp.Err(); err != nil {
				log.Warn("event log watch failed", zap.Error(err))
				continue
			}
			for _, ev := range watchResp.Events {
				if ev.Type != mvccpb.PUT {
					continue
				}
				published, err := l.decode(ev.Kv.Key, ev.Kv.Value)
				if err != nil {
					log.Warn("skip undecodable event", zap.ByteString("key", ev.Kv.Key), zap.Error(err))
					continue
				}
				select {
				case out <- published:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (l *EventLog) decode(key, value []byte) (PublishedEvent, error) {
	parts, err := etcd.SplitKey(l.prefix, string(key))
	if err != nil {
		return PublishedEvent{}, errors.Trace(err)
	}
	e, err := codec.DecodeAs[*model.StatusChangeEvent](l.factory, value)
	if err != nil {
		return PublishedEvent{}, errors.Trace(err)
	}
	return PublishedEvent{Source: strings.Join(parts[:len(parts)-1], "/"), Event: e}, nil
}
