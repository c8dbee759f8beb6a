package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ordersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "order_service",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Total number of orders created",
		},
	)

	transitionsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_service",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Total number of applied status transitions",
		},
		[]string{"to"},
	)

	transitionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "order_service",
			Subsystem: "orders",
			Name:      "transitions_rejected_total",
			Help:      "Total number of rejected status transitions",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	prometheus.MustRegister(
		ordersCreated,
		transitionsApplied,
		transitionsRejected,
	)
}
