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
package server

import (
	"context"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/dataio/jobstore/jobstore/scheduler"
)

// LogDispatcher logs admitted chunks. It is used when the server runs
// without an embedding application that owns the workers.
type LogDispatcher struct{}

// Dispatch implements scheduler.Dispatcher.
func (LogDispatcher) Dispatch(_ context.Context, item scheduler.WorkItem) error {
	log.Info("chunk admitted",
		zap.Stringer("key", item.Key),
		zap.Int32("sink", item.SinkID),
		zap.Stringer("status", item.Status))
	return nil
}
