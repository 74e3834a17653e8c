package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking holds the availability engine's instruments. A nil *Booking records nothing.
type Booking struct {
	bookings      *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	slotsFailOpen prometheus.Counter
	slotQuery     prometheus.Histogram
}

func NewBooking(reg prometheus.Registerer) *Booking {
	m := &Booking{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by identity source and result.",
		}, []string{"source", "result"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Cancellation requests by result.",
		}, []string{"result"}),
		slotsFailOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "booking",
			Name:      "slots_fail_open_total",
			Help:      "Slot listings served unfiltered because the booking store query failed.",
		}),
		slotQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "counselbook",
			Subsystem: "booking",
			Name:      "slot_query_seconds",
			Help:      "Latency of the booked-slot lookup behind slot listings.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bookings, m.cancellations, m.slotsFailOpen, m.slotQuery)
	}
	return m
}

func (m *Booking) Booking(source, result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(source, result).Inc()
}

func (m *Booking) Cancellation(result string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(result).Inc()
}

func (m *Booking) SlotsFailOpen() {
	if m == nil {
		return
	}
	m.slotsFailOpen.Inc()
}

func (m *Booking) ObserveSlotQuery(start time.Time) {
	if m == nil {
		return
	}
	m.slotQuery.Observe(time.Since(start).Seconds())
}
