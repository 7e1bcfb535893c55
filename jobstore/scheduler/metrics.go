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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	statusChangeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataio",
			Subsystem: "jobstore",
			Name:      "status_change_total",
			Help:      "Number of chunk status changes",
		}, []string{"sink", "old", "new"})
	admissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dataio",
			Subsystem: "jobstore",
			Name:      "admission_total",
			Help:      "Number of admission attempts into a queued status",
		}, []string{"stage", "result"})
	chunkStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dataio",
			Subsystem: "jobstore",
			Name:      "chunk_status",
			Help:      "Number of chunks per sink and status",
		}, []string{"sink", "status"})
	processorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dataio",
			Subsystem: "jobstore",
			Name:      "processor_duration_seconds",
			Help:      "Bucketed histogram of entry processor duration, including retries",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18), // 0.1ms~13s
		}, []string{"processor"})
)

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(statusChangeCounter)
	registry.MustRegister(admissionCounter)
	registry.MustRegister(chunkStatusGauge)
	registry.MustRegister(processorDuration)
}
