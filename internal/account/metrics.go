// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package account

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by Service.
type Metrics struct {
	Operations *prometheus.CounterVec
	Lockouts   prometheus.Counter
}

// NewMetrics creates the account metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authflows_account_operations_total",
				Help: "Total number of account operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		Lockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authflows_account_lockouts_total",
				Help: "Total number of accounts that reached the password attempt limit",
			},
		),
	}

	reg.MustRegister(m.Operations)
	reg.MustRegister(m.Lockouts)

	return m
}

func (m *Metrics) observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = resultLabel(err)
	}
	m.Operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// resultLabel maps an error to a low-cardinality metric label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}
