// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/entityvault/services/repository/model"
)

// Prometheus metrics for lifecycle operations.
var opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "repository_node_operations_total",
	Help: "Total node lifecycle operations by operation and outcome",
}, []string{"operation", "outcome"})

// opFailed records the failure outcome of an operation and passes the
// error through unchanged.
func opFailed(operation string, err error) error {
	opsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
	return err
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrConflictingUpdate):
		return "conflict"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInvalidModel):
		return "invalid"
	default:
		return "error"
	}
}
