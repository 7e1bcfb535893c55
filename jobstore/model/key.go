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

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
	"github.com/vmihailenco/msgpack/v5"

	cerror "github.com/dataio/jobstore/pkg/errors"
)

type (
	// JobID is the id of a job.
	JobID = int32
	// ChunkID is the id of a chunk within its job.
	ChunkID = int32
	// SinkID is the id of a sink.
	SinkID = int32
)

// TrackingKey identifies a chunk across the cluster.
type TrackingKey struct {
	JobID   JobID   `json:"job-id" msgpack:"j"`
	ChunkID ChunkID `json:"chunk-id" msgpack:"c"`
}

// NewTrackingKey creates a TrackingKey.
func NewTrackingKey(jobID JobID, chunkID ChunkID) TrackingKey {
	return TrackingKey{JobID: jobID, ChunkID: chunkID}
}

func (k TrackingKey) String() string {
	return fmt.Sprintf("%d/%d", k.JobID, k.ChunkID)
}

// Less orders keys by job and then by chunk.
func (k TrackingKey) Less(other TrackingKey) bool {
	if k.JobID != other.JobID {
		return k.JobID < other.JobID
	}
	return k.ChunkID < other.ChunkID
}

// ParseTrackingKey parses the "job/chunk" form produced by String.
func ParseTrackingKey(s string) (TrackingKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return TrackingKey{}, cerror.ErrInvalidTrackingKey.GenWithStackByArgs(s)
	}
	jobID, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return TrackingKey{}, cerror.WrapError(cerror.ErrInvalidTrackingKey, err, s)
	}
	chunkID, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return TrackingKey{}, cerror.WrapError(cerror.ErrInvalidTrackingKey, err, s)
	}
	return NewTrackingKey(JobID(jobID), ChunkID(chunkID)), nil
}

// KeySet is a set of tracking keys.
type KeySet map[TrackingKey]struct{}

// NewKeySet creates a KeySet holding keys.
func NewKeySet(keys ...TrackingKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add adds k to the set.
func (s KeySet) Add(k TrackingKey) {
	s[k] = struct{}{}
}

// Remove removes k and reports whether it was present.
func (s KeySet) Remove(k TrackingKey) bool {
	if _, ok := s[k]; !ok {
		return false
	}
	delete(s, k)
	return true
}

// Contains returns true if k is in the set.
func (s KeySet) Contains(k TrackingKey) bool {
	_, ok := s[k]
	return ok
}

// Equal returns true if both sets hold the same keys.
func (s KeySet) Equal(other KeySet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}

// Union returns a new set with the keys of both sets.
func (s KeySet) Union(other KeySet) KeySet {
	res := make(KeySet, len(s)+len(other))
	for k := range s {
		res[k] = struct{}{}
	}
	for k := range other {
		res[k] = struct{}{}
	}
	return res
}

// Clone returns a copy of the set.
func (s KeySet) Clone() KeySet {
	return s.Union(nil)
}

// Sorted returns the keys in order.
func (s KeySet) Sorted() []TrackingKey {
	keys := make([]TrackingKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// MarshalJSON encodes the set as a sorted list of keys.
// Only used for pretty print in zap log.
func (s KeySet) MarshalJSON() ([]byte, error) {
	strs := make([]string, 0, len(s))
	for _, k := range s.Sorted() {
		strs = append(strs, k.String())
	}
	return json.Marshal(strs)
}

// EncodeMsgpack implements msgpack.CustomEncoder. The set is written as a
// sorted list so that equal sets have equal encodings.
func (s KeySet) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(s.Sorted())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (s *KeySet) DecodeMsgpack(dec *msgpack.Decoder) error {
	var keys []TrackingKey
	if err := dec.Decode(&keys); err != nil {
		return errors.Trace(err)
	}
	*s = NewKeySet(keys...)
	return nil
}
