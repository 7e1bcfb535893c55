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
	"github.com/pingcap/errors"

	"github.com/dataio/jobstore/jobstore/codec"
	"github.com/dataio/jobstore/jobstore/model"
	cerrors "github.com/dataio/jobstore/pkg/errors"
	"github.com/dataio/jobstore/pkg/etcd"
)

// TrackingKeyCodec encodes a tracking key as "<job>/<chunk>".
var TrackingKeyCodec = KeyCodec[model.TrackingKey]{
	Encode: func(k model.TrackingKey) string {
		return etcd.EncodeID(k.JobID) + "/" + etcd.EncodeID(k.ChunkID)
	},
	Decode: func(s string) (model.TrackingKey, error) {
		parts, err := etcd.SplitKey("", s)
		if err != nil {
			return model.TrackingKey{}, errors.Trace(err)
		}
		if len(parts) != 2 {
			return model.TrackingKey{}, cerrors.ErrInvalidEtcdKey.GenWithStackByArgs(s)
		}
		jobID, err := etcd.DecodeID(parts[0])
		if err != nil {
			return model.TrackingKey{}, errors.Trace(err)
		}
		chunkID, err := etcd.DecodeID(parts[1])
		if err != nil {
			return model.TrackingKey{}, errors.Trace(err)
		}
		return model.NewTrackingKey(jobID, chunkID), nil
	},
}

// SinkIDCodec encodes a sink id.
var SinkIDCodec = KeyCodec[model.SinkID]{
	Encode: etcd.EncodeID,
	Decode: etcd.DecodeID,
}

// NewTrackingMap creates the dependency tracking map of a cluster.
func NewTrackingMap(
	client *etcd.Client, clusterID string, factory *codec.Factory,
) *Map[model.TrackingKey, *model.DependencyTracking] {
	return New("tracking", client, etcd.TrackingPrefix(clusterID), TrackingKeyCodec,
		ValueCodec[*model.DependencyTracking]{
			Encode: func(t *model.DependencyTracking) ([]byte, error) {
				return factory.Encode(t)
			},
			Decode: func(data []byte) (*model.DependencyTracking, error) {
				return codec.DecodeAs[*model.DependencyTracking](factory, data)
			},
		})
}

// NewCountersMap creates the per-sink counters map of a cluster.
func NewCountersMap(
	client *etcd.Client, clusterID string, factory *codec.Factory,
) *Map[model.SinkID, model.StatusCounters] {
	return New("counters", client, etcd.CountersPrefix(clusterID), SinkIDCodec,
		ValueCodec[model.StatusCounters]{
			Encode: func(c model.StatusCounters) ([]byte, error) {
				return factory.Encode(&c)
			},
			Decode: func(data []byte) (model.StatusCounters, error) {
				c, err := codec.DecodeAs[*model.StatusCounters](factory, data)
				if err != nil {
					return nil, errors.Trace(err)
				}
				return *c, nil
			},
		})
}
