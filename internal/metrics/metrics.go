// Package metrics exposes Prometheus counters for message building and
// delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesBuiltTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailkit_messages_built_total",
		Help: "The total number of draft build attempts by result",
	}, []string{"result"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailkit_deliveries_total",
		Help: "The total number of delivery attempts by provider and result",
	}, []string{"provider", "result"})

	DeliveryRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailkit_delivery_retries_total",
		Help: "The total number of delivery retries by provider",
	}, []string{"provider"})

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailkit_delivery_duration_seconds",
		Help:    "Time spent delivering a message, including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
)

// ObserveDelivery records the outcome and duration of one delivery.
func ObserveDelivery(provider string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	DeliveriesTotal.WithLabelValues(provider, result).Inc()
	DeliveryDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
