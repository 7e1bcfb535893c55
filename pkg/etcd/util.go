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
	"strings"

	"github.com/pingcap/errors"
	v3rpc "go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientV3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func getRevisionFromWatchOpts(opts ...clientV3.OpOption) int64 {
	op := &clientV3.Op{}
	for _, opt := range opts {
		opt(op)
	}
	return op.Rev()
}

// isRetryableEtcdError returns true if a txn failed without being applied.
func isRetryableEtcdError(err error) bool {
	if err == nil {
		return false
	}
	etcdErr := errors.Cause(err)
	switch etcdErr {
	case v3rpc.ErrGRPCTimeoutDueToConnectionLost,
		v3rpc.ErrTimeoutDueToLeaderFail,
		v3rpc.ErrNoSpace:
		return true
	}
	if status.Code(etcdErr) == codes.Unavailable {
		return true
	}
	// The client may only see the error text when the transport is torn down.
	msg := etcdErr.Error()
	return strings.Contains(msg, "received prior goaway: code: NO_ERROR") ||
		strings.Contains(msg, "connection reset by peer")
}
