package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AcceptOutcomes counts accept attempts by outcome label.
	AcceptOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_accept_total",
			Help: "Total number of accept attempts by outcome",
		}, []string{"outcome"})

	OffersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadflow_offers_created_total",
			Help: "Total number of offers created by broadcasts",
		})

	SweepExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_sweep_expired_total",
			Help: "Total number of entities expired by the sweeper",
		}, []string{"entity"})

	SweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadflow_sweep_failures_total",
			Help: "Total number of rows the sweeper failed to process",
		})

	InvariantViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadflow_invariant_violations_total",
			Help: "Total number of detected invariant violations",
		}, []string{"invariant"})

	LedgerDebits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "leadflow_ledger_debit_amount_total",
			Help: "Sum of debited lead amounts in minor units",
		})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(AcceptOutcomes)
	reg.MustRegister(OffersCreated)
	reg.MustRegister(SweepExpired)
	reg.MustRegister(SweepFailures)
	reg.MustRegister(InvariantViolations)
	reg.MustRegister(LedgerDebits)
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
