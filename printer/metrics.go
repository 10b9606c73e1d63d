/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package printer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the process-local collectors of one participant. Each process
// keeps its own; only the coordinator exposes them over HTTP.
type Metrics struct {
	Enqueued    prometheus.Counter
	Dequeued    prometheus.Counter
	Completed   prometheus.Counter
	JobDuration prometheus.Histogram
	Workers     *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "printq_requests_enqueued_total",
			Help: "Print requests inserted into the shared queue",
		}),
		Dequeued: f.NewCounter(prometheus.CounterOpts{
			Name: "printq_requests_dequeued_total",
			Help: "Print requests removed from the shared queue",
		}),
		Completed: f.NewCounter(prometheus.CounterOpts{
			Name: "printq_jobs_completed_total",
			Help: "Simulated print jobs run to completion",
		}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "printq_job_duration_seconds",
			Help:    "Wall time of simulated print jobs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Workers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "printq_workers",
			Help: "Live worker processes by role",
		}, []string{"role"}),
	}
}
