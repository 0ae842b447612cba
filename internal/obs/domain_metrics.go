package obs

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SaleCheckoutTotal counts checkout outcomes.
	SaleCheckoutTotal *prometheus.CounterVec
	// PaymentRecordedTotal counts payment recording outcomes by resulting sale status.
	PaymentRecordedTotal *prometheus.CounterVec
	// CommissionsMarkedTotal counts commission records transitioned to paid.
	CommissionsMarkedTotal prometheus.Counter
	// ReferenceConflictsTotal counts sale number collisions that forced a retry.
	ReferenceConflictsTotal prometheus.Counter
	// StaleBalanceRetriesTotal counts payment writes retried after a version conflict.
	StaleBalanceRetriesTotal prometheus.Counter
	// LockWaitMillis records time spent acquiring per-sale locks.
	LockWaitMillis prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SaleCheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		PaymentRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Count of payment recording attempts by outcome and resulting status.",
		}, []string{"result", "status"})
		CommissionsMarkedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_marked_total",
			Help:      "Number of commission records transitioned to paid.",
		})
		ReferenceConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_conflicts_total",
			Help:      "Number of sale number collisions resolved by regeneration.",
		})
		StaleBalanceRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_balance_retries_total",
			Help:      "Number of payment writes retried after a concurrent balance update.",
		})
		LockWaitMillis = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_lock_wait_ms",
			Help:      "Time spent acquiring per-sale locks in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		})

		mustRegisterCollector(reg, SaleCheckoutTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SaleCheckoutTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentRecordedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentRecordedTotal = v
			}
		})
		mustRegisterCollector(reg, CommissionsMarkedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CommissionsMarkedTotal = v
			}
		})
		mustRegisterCollector(reg, ReferenceConflictsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ReferenceConflictsTotal = v
			}
		})
		mustRegisterCollector(reg, StaleBalanceRetriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				StaleBalanceRetriesTotal = v
			}
		})
		mustRegisterCollector(reg, LockWaitMillis, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				LockWaitMillis = v
			}
		})
	})
}

// CountVec increments vec when domain metrics are registered.
func CountVec(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	for i, l := range labels {
		labels[i] = NormaliseLabel(l)
	}
	vec.WithLabelValues(labels...).Inc()
}

// Count adds n to c when domain metrics are registered.
func Count(c prometheus.Counter, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Add(float64(n))
}

// Observe records v on h when domain metrics are registered.
func Observe(h prometheus.Histogram, v float64) {
	if h == nil {
		return
	}
	h.Observe(v)
}

// NormaliseLabel lower-cases a label value, substituting "unknown" for blanks.
func NormaliseLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
