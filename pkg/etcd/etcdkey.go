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

package etcd

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/dataio/jobstore/pkg/errors"
)

const (
	// DefaultClusterAndNamespacePrefix is the root of every job store key.
	DefaultClusterAndNamespacePrefix = "/dataio/jobstore"
	// DefaultClusterID is the cluster id used when none is configured.
	DefaultClusterID = "default"

	trackingKey = "/tracking"
	countersKey = "/counters"
	eventsKey   = "/events"
)

// Key layout:
//
//	/dataio/jobstore/<cluster>/tracking/<job>/<chunk>
//	/dataio/jobstore/<cluster>/counters/<sink>
//	/dataio/jobstore/<cluster>/events/<revision-ordered id>
//
// Ids are written with EncodeID so that etcd's byte order matches their
// numeric order.

// ClusterPrefix returns the prefix of every key of a cluster.
func ClusterPrefix(clusterID string) string {
	return DefaultClusterAndNamespacePrefix + "/" + clusterID
}

// TrackingPrefix returns the prefix of the dependency tracking entries.
func TrackingPrefix(clusterID string) string {
	return ClusterPrefix(clusterID) + trackingKey + "/"
}

// CountersPrefix returns the prefix of the per-sink counters.
func CountersPrefix(clusterID string) string {
	return ClusterPrefix(clusterID) + countersKey + "/"
}

// EventsPrefix returns the prefix of the status change event log.
func EventsPrefix(clusterID string) string {
	return ClusterPrefix(clusterID) + eventsKey + "/"
}

// EncodeID encodes an int32 as 8 hex digits with the sign bit flipped, so
// the lexical order of encoded ids is their numeric order.
func EncodeID(id int32) string {
	return fmt.Sprintf("%08x", uint32(id)^(1<<31))
}

// DecodeID decodes an id written by EncodeID.
func DecodeID(s string) (int32, error) {
	if len(s) != 8 {
		return 0, cerrors.ErrInvalidEtcdKey.GenWithStackByArgs(s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, cerrors.WrapError(cerrors.ErrInvalidEtcdKey, err, s)
	}
	return int32(uint32(v) ^ (1 << 31)), nil
}

// SplitKey returns the components of key after prefix.
func SplitKey(prefix, key string) ([]string, error) {
	if !strings.HasPrefix(key, prefix) {
		return nil, cerrors.ErrInvalidEtcdKey.GenWithStackByArgs(key)
	}
	return strings.Split(strings.TrimPrefix(key, prefix), "/"), nil
}
