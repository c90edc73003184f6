// Package metrics collects Prometheus metrics and serves the operations
// HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "numberbot"

type Collector struct {
	updates          *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	smsSent          prometheus.Counter
	usageCost        *prometheus.CounterVec
}

// NewCollector registers the bot metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates handled, by kind.",
		}, []string{"kind"}),
		providerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Calls to the SMS provider, by operation and outcome.",
		}, []string{"op", "status"}),
		providerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of calls to the SMS provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		smsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sms_sent_total",
			Help:      "Outbound SMS accepted by the provider.",
		}),
		usageCost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_cost_total",
			Help:      "Cost recorded in the usage ledger, by action.",
		}, []string{"action"}),
	}
}

func (c *Collector) ObserveUpdate(kind string) {
	c.updates.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveProviderCall(op string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.providerRequests.WithLabelValues(op, status).Inc()
	c.providerDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (c *Collector) ObserveSMSSent() {
	c.smsSent.Inc()
}

func (c *Collector) ObserveUsage(action string, cost float64) {
	c.usageCost.WithLabelValues(action).Add(cost)
}
