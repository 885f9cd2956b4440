// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for query execution.
var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "repository_queries_total",
		Help: "Total executed queries by outcome",
	}, []string{"outcome"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repository_query_duration_seconds",
		Help:    "Time spent executing a query plan",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	queryRowsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "repository_query_rows_returned",
		Help:    "Rows returned per query page",
		Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 10000},
	})
)
