package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

type Metrics struct {
	// outcome of each coordinator step (step, result)
	StepsTotal *prometheus.CounterVec

	// confirmed sale attempts (outcome)
	SalesTotal *prometheus.CounterVec

	// authority-confirmed sales that could not be recorded locally
	LedgerFailuresTotal prometheus.Counter

	SessionsSweptTotal prometheus.Counter

	// catalog cache invalidations (source)
	CatalogInvalidationsTotal *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Reservation workflow steps by result",
			},
			[]string{"step", "result"},
		),
		SalesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sales_total",
				Help:      "Sale attempts by authority outcome",
			},
			[]string{"outcome"},
		),
		LedgerFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_failures_total",
				Help:      "Authority-confirmed sales that failed local persistence",
			},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_swept_total",
				Help:      "Expired sessions deleted by the sweep",
			},
		),
		CatalogInvalidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_invalidations_total",
				Help:      "Catalog cache invalidations by trigger",
			},
			[]string{"source"},
		),
	}

	reg.MustRegister(
		m.StepsTotal,
		m.SalesTotal,
		m.LedgerFailuresTotal,
		m.SessionsSweptTotal,
		m.CatalogInvalidationsTotal,
	)

	return m
}

func (m *Metrics) ObserveStep(step, result string) {
	m.StepsTotal.WithLabelValues(step, result).Inc()
}

func (m *Metrics) ObserveSale(outcome bool) {
	m.SalesTotal.WithLabelValues(strconv.FormatBool(outcome)).Inc()
}

func (m *Metrics) ObserveLedgerFailure() {
	m.LedgerFailuresTotal.Inc()
}

func (m *Metrics) ObserveSwept(n int64) {
	if n > 0 {
		m.SessionsSweptTotal.Add(float64(n))
	}
}

func (m *Metrics) ObserveInvalidation(source string) {
	m.CatalogInvalidationsTotal.WithLabelValues(source).Inc()
}
