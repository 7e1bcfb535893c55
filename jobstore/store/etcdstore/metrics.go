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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	casConflictCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataio",
			Subsystem: "jobstore",
			Name:      "etcd_cas_conflict_total",
			Help:      "Number of etcd compare-and-swap conflicts per map",
		}, []string{"map"})
	publishedEventsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dataio",
			Subsystem: "jobstore",
			Name:      "event_log_published_total",
			Help:      "Number of status change events written to the event log",
		})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(casConflictCounter)
	registry.MustRegister(publishedEventsCounter)
}
