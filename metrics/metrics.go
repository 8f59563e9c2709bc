// Package metrics wires the prometheus counters/gauges updated by the
// whitelist compiler, the session client, and the tenant runtime.
package metrics

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

const (
	NAMESPACE = "wlc"
	SUBSYSTEM = ""
)

var (
	// WhitelistResolvedTotal counts call sites the compiler resolved to a
	// concrete query.
	WhitelistResolvedTotal prometheus.Counter

	// WhitelistUnresolvedTotal counts call sites the compiler could not
	// statically resolve.
	WhitelistUnresolvedTotal prometheus.Counter

	// SessionRequestsTotal counts session requests by outcome.
	SessionRequestsTotal *prometheus.CounterVec

	// TenantTicksTotal counts tenant runtime ticks processed.
	TenantTicksTotal prometheus.Counter

	// TenantSubtasksActive reports the current number of outstanding
	// tenant subtasks (queries, fetches, timers).
	TenantSubtasksActive prometheus.Gauge
)

// Init constructs and registers all metrics against the default registry.
func Init() error {
	WhitelistResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Name:      "resolved_total",
		Help:      "Total number of call sites the whitelist compiler resolved to a query",
	})
	WhitelistUnresolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Name:      "unresolved_total",
		Help:      "Total number of call sites the whitelist compiler could not resolve",
	})
	SessionRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Name:      "session_requests_total",
		Help:      "Total number of session requests by outcome",
	}, []string{"outcome"})
	TenantTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Name:      "tenant_ticks_total",
		Help:      "Total number of tenant runtime ticks processed",
	})
	TenantSubtasksActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: NAMESPACE,
		Name:      "tenant_subtasks_active",
		Help:      "Current number of outstanding tenant subtasks",
	})

	errs := make([]error, 0, 7)
	errs = append(errs, prometheus.Register(WhitelistResolvedTotal))
	errs = append(errs, prometheus.Register(WhitelistUnresolvedTotal))
	errs = append(errs, prometheus.Register(SessionRequestsTotal))
	errs = append(errs, prometheus.Register(TenantTicksTotal))
	errs = append(errs, prometheus.Register(TenantSubtasksActive))
	errs = append(errs, prometheus.Register(collectors.NewBuildInfoCollector()))
	errs = append(errs, prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: NAMESPACE})))
	return errors.WithStack(multierr.Combine(errs...))
}
