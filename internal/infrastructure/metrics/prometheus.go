// Package metrics exposes engine and notification counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/approvalflow/internal/application/port"
)

const namespace = "approvalflow"

// Collector implements port.Metrics with Prometheus counters
type Collector struct {
	transitions   *prometheus.CounterVec
	actions       *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewCollector registers the counters on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_transitions_total",
			Help:      "Approval instance status transitions.",
		}, []string{"from", "to"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Approver actions by type and whether the engine accepted them.",
		}, []string{"action_type", "accepted"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and result.",
		}, []string{"channel", "delivered"}),
	}
}

func (c *Collector) ObserveTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) ObserveAction(actionType string, accepted bool) {
	c.actions.WithLabelValues(actionType, strconv.FormatBool(accepted)).Inc()
}

func (c *Collector) ObserveNotification(channel string, delivered bool) {
	c.notifications.WithLabelValues(channel, strconv.FormatBool(delivered)).Inc()
}

// Verify interface compliance
var _ port.Metrics = (*Collector)(nil)
