package cartsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cartOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Cart synchronizer operations by operation and result.",
		},
		[]string{"op", "result"},
	)

	cartOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_cart_operation_duration_seconds",
			Help:    "Duration of cart operations including the follow-up refresh.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

const (
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultRejected = "rejected"
	resultStale    = "stale"
)
