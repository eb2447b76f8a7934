package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for discovery and booking flows.
type SchedulingMetrics struct {
	searchLatency *prometheus.HistogramVec
	searchResults prometheus.Histogram
	bookings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "discovery",
			Name:      "search_latency_seconds",
			Help:      "Latency of doctor searches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sort"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "discovery",
			Name:      "search_results",
			Help:      "Number of doctors returned per search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "allocator",
			Name:      "bookings_total",
			Help:      "Slot booking attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "ledger",
			Name:      "transitions_total",
			Help:      "Committed appointment status transitions",
		}, []string{"from", "to"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "notify",
			Name:      "events_total",
			Help:      "Notification events by type and delivery status",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.searchLatency, m.searchResults, m.bookings, m.transitions, m.notifications)
	return m
}

func (m *SchedulingMetrics) ObserveSearch(sort string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.searchLatency.WithLabelValues(sort).Observe(seconds)
	m.searchResults.Observe(float64(results))
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *SchedulingMetrics) ObserveNotification(eventType, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(eventType, status).Inc()
}
