// Copyright 2026 The Manifold Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus metrics for the execution engine,
// served by the HTTP API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/manifold-ai/manifold/pkg/engine"
)

var (
	// executionsTotal counts executions by strategy and outcome.
	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifold_executions_total",
			Help: "Total executions by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// executionDuration observes end-to-end execution time by strategy.
	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manifold_execution_duration_seconds",
			Help:    "End-to-end execution duration by strategy",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"strategy"},
	)

	// modelInvocationsTotal counts individual model calls by class and outcome.
	modelInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifold_model_invocations_total",
			Help: "Total model invocations by model class and outcome",
		},
		[]string{"class", "outcome"},
	)

	// modelTimeoutsTotal counts invocations abandoned at the per-call deadline.
	modelTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manifold_model_timeouts_total",
			Help: "Total model invocations that hit the per-call deadline",
		},
		[]string{"class"},
	)

	// speedup observes the reported concurrency gain per execution.
	speedup = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manifold_execution_speedup",
			Help:    "Reported concurrency gain per execution",
			Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 6, 8},
		},
		[]string{"strategy"},
	)

	// synthesisConfidence observes the combined confidence of successful
	// executions.
	synthesisConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "manifold_synthesis_confidence",
			Help:    "Combined confidence of successful executions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

// Observe records one completed execution and all its model invocations.
func Observe(result *engine.ExecutionResult) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}

	executionsTotal.WithLabelValues(result.Strategy, outcome).Inc()
	executionDuration.WithLabelValues(result.Strategy).Observe(result.Elapsed.Duration().Seconds())
	speedup.WithLabelValues(result.Strategy).Observe(result.Speedup)

	if result.Success {
		synthesisConfidence.Observe(result.Confidence)
	}

	observeInvocations(result.InterfaceResults)
	observeInvocations(result.KnowledgeResults)
}

func observeInvocations(results []engine.InvocationResult) {
	for _, r := range results {
		outcome := "success"
		if !r.Success {
			outcome = "failure"
		}
		modelInvocationsTotal.WithLabelValues(string(r.Class), outcome).Inc()
		if r.TimedOut {
			modelTimeoutsTotal.WithLabelValues(string(r.Class)).Inc()
		}
	}
}
