// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package metrics registers the process's prometheus collectors.
// Grounded on metrics/metric.go's package-level Registry +
// grpcprometheus.NewServerMetrics pattern, extended here with daemon
// state and epoch gauges (SPEC_FULL §11 domain-stack wiring).
package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	GRPCMetrics = grpcprometheus.NewServerMetrics(
		func(c *prometheus.CounterOpts) {
			c.Namespace = "mdsd"
		},
	)

	DaemonState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mdsd",
		Name:      "daemon_state",
		Help:      "current daemon state, one gauge per known DaemonState value set to 1",
	}, []string{"state"})

	ClusterMapEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mdsd",
		Name:      "clustermap_epoch",
		Help:      "last accepted cluster map epoch",
	})

	OSDMapEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mdsd",
		Name:      "osdmap_epoch",
		Help:      "last observed OSD map epoch",
	})

	EpochBarrier = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mdsd",
		Name:      "epoch_barrier",
		Help:      "minimum OSD-map epoch required before granting capabilities",
	})

	SlowOps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mdsd",
		Name:      "slow_ops_in_flight",
		Help:      "operations currently exceeding the slow-op complaint threshold",
	})
)

func init() {
	Registry.MustRegister(
		GRPCMetrics,
		DaemonState,
		ClusterMapEpoch,
		OSDMapEpoch,
		EpochBarrier,
		SlowOps,
	)
	GRPCMetrics.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = "mdsd"
		},
	)
}

// PublishState sets exactly one DaemonState gauge to 1 and clears the
// others, so a dashboard can graph state occupancy over time.
func PublishState(known []string, current string) {
	for _, s := range known {
		if s == current {
			DaemonState.WithLabelValues(s).Set(1)
		} else {
			DaemonState.WithLabelValues(s).Set(0)
		}
	}
}
