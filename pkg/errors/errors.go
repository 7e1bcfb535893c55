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

package errors

import (
	"github.com/pingcap/errors"
)

// errors
var (
	// scheduling model errors
	ErrUnknownSchedulingStatus = errors.Normalize(
		"unknown chunk scheduling status code: %d",
		errors.RFCCodeText("DataIO:ErrUnknownSchedulingStatus"),
	)
	ErrInvalidTrackingKey = errors.Normalize(
		"invalid tracking key: %s",
		errors.RFCCodeText("DataIO:ErrInvalidTrackingKey"),
	)
	ErrChunkAlreadyTracked = errors.Normalize(
		"chunk %s is already tracked",
		errors.RFCCodeText("DataIO:ErrChunkAlreadyTracked"),
	)
	ErrCounterUnderflow = errors.Normalize(
		"counter of sink %d for status %s would become negative",
		errors.RFCCodeText("DataIO:ErrCounterUnderflow"),
	)

	// codec related errors
	ErrEncodeFailed = errors.Normalize(
		"encode failed: %s",
		errors.RFCCodeText("DataIO:ErrEncodeFailed"),
	)
	ErrDecodeFailed = errors.Normalize(
		"decode failed: %s",
		errors.RFCCodeText("DataIO:ErrDecodeFailed"),
	)
	ErrUnknownTypeID = errors.Normalize(
		"unknown type id %d in factory %d",
		errors.RFCCodeText("DataIO:ErrUnknownTypeID"),
	)

	// etcd related errors
	ErrEtcdAPIError = errors.Normalize(
		"etcd api call error",
		errors.RFCCodeText("DataIO:ErrEtcdAPIError"),
	)
	ErrEtcdTxnConflict = errors.Normalize(
		"etcd txn on key %s conflicted %d times",
		errors.RFCCodeText("DataIO:ErrEtcdTxnConflict"),
	)
	ErrInvalidEtcdKey = errors.Normalize(
		"invalid key: %s",
		errors.RFCCodeText("DataIO:ErrInvalidEtcdKey"),
	)
	ErrEtcdSessionDone = errors.Normalize(
		"the etcd session is done",
		errors.RFCCodeText("DataIO:ErrEtcdSessionDone"),
	)

	// retry error
	ErrReachMaxTry = errors.Normalize("reach maximum try: %s, error: %s",
		errors.RFCCodeText("DataIO:ErrReachMaxTry"),
	)

	// server related errors
	ErrInvalidServerOption = errors.Normalize(
		"invalid server option: %s",
		errors.RFCCodeText("DataIO:ErrInvalidServerOption"),
	)
	ErrSchedulerClosed = errors.Normalize(
		"scheduler is closed",
		errors.RFCCodeText("DataIO:ErrSchedulerClosed"),
	)
	ErrDispatchFailed = errors.Normalize(
		"dispatch chunk %s failed",
		errors.RFCCodeText("DataIO:ErrDispatchFailed"),
	)
	ErrServeHTTP = errors.Normalize(
		"serve http error",
		errors.RFCCodeText("DataIO:ErrServeHTTP"),
	)
)
