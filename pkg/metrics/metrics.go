package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_reservations_admitted_total",
		Help: "Reservation batches persisted with all items held.",
	})

	ReservationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_reservations_rejected_total",
		Help: "Reservation batches rejected, by reason.",
	}, []string{"reason"})

	ReservationsDebited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_reservations_debited_total",
		Help: "Reservations converted into permanent stock deductions.",
	})

	ReservationsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_reservations_released_total",
		Help: "Reservations released back to available stock.",
	})

	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_orders_created_total",
		Help: "Order creation attempts, by outcome.",
	}, []string{"outcome"})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_events_consumed_total",
		Help: "Lifecycle events consumed, by type and result.",
	}, []string{"type", "result"})
)
