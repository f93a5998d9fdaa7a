package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the gate ledger. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	EntriesApproved    prometheus.Counter
	Exits              prometheus.Counter
	HistoryCleared     prometheus.Counter
	Lookups            *prometheus.CounterVec
	VehiclesInside     prometheus.Gauge
	EnrichmentFailures *prometheus.CounterVec
}

// New registers every gate metric with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesApproved: f.NewCounter(prometheus.CounterOpts{
			Name: "gatelog_entries_approved_total",
			Help: "Total vehicle entries approved",
		}),
		Exits: f.NewCounter(prometheus.CounterOpts{
			Name: "gatelog_exits_total",
			Help: "Total vehicles marked as exited",
		}),
		HistoryCleared: f.NewCounter(prometheus.CounterOpts{
			Name: "gatelog_history_cleared_total",
			Help: "Total confirmed history clears",
		}),
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatelog_lookups_total",
			Help: "Total plate lookups by outcome",
		}, []string{"outcome"}), // outcome: "resolved", "no_authority", "input_required", "invalid_format"

		VehiclesInside: f.NewGauge(prometheus.GaugeOpts{
			Name: "gatelog_vehicles_inside",
			Help: "Vehicles currently inside the gate",
		}),
		EnrichmentFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gatelog_enrichment_failures_total",
			Help: "Failed enrichment calls by kind",
		}, []string{"kind"}), // kind: "plate_scan", "purpose", "screening"
	}
}

func (m *Metrics) IncrementApproved() {
	if m != nil {
		m.EntriesApproved.Inc()
	}
}

func (m *Metrics) IncrementExits() {
	if m != nil {
		m.Exits.Inc()
	}
}

func (m *Metrics) IncrementHistoryCleared() {
	if m != nil {
		m.HistoryCleared.Inc()
	}
}

func (m *Metrics) IncrementLookup(outcome string) {
	if m != nil {
		m.Lookups.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetVehiclesInside(n int) {
	if m != nil {
		m.VehiclesInside.Set(float64(n))
	}
}

func (m *Metrics) IncrementEnrichmentFailure(kind string) {
	if m != nil {
		m.EnrichmentFailures.WithLabelValues(kind).Inc()
	}
}
