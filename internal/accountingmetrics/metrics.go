// Package accountingmetrics exports billing-relevant gauges to an external
// Prometheus sink. Export failures are logged and never affect rendering.
package accountingmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "htmlpdf_accounting"

type collectors struct {
	rendersToday        *prometheus.GaugeVec
	costCentsToday      *prometheus.GaugeVec
	outboxBacklog       *prometheus.GaugeVec
	activeSubscriptions prometheus.Gauge
	lastSnapshot        prometheus.Gauge
}

func newCollectors(registry prometheus.Registerer, constLabels prometheus.Labels) *collectors {
	c := &collectors{
		rendersToday: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "renders_today",
			Help:        "Recorded renders since 00:00 UTC by entitlement.",
			ConstLabels: constLabels,
		}, []string{"entitlement"}),
		costCentsToday: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "cost_cents_today",
			Help:        "Billed cents since 00:00 UTC by entitlement.",
			ConstLabels: constLabels,
		}, []string{"entitlement"}),
		outboxBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "outbox_backlog",
			Help:        "Usage outbox rows not yet recorded, by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_subscriptions",
			Help:        "Subscriptions currently in active status.",
			ConstLabels: constLabels,
		}),
		lastSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_snapshot_timestamp_seconds",
			Help:        "Unix time of the last successful snapshot.",
			ConstLabels: constLabels,
		}),
	}
	registry.MustRegister(
		c.rendersToday,
		c.costCentsToday,
		c.outboxBacklog,
		c.activeSubscriptions,
		c.lastSnapshot,
	)
	return c
}
