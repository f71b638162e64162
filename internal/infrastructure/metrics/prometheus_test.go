package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveTransition("DRAFT", "PENDING_APPROVAL")
	c.ObserveTransition("DRAFT", "PENDING_APPROVAL")
	c.ObserveAction("APPROVE", true)
	c.ObserveAction("APPROVE", false)
	c.ObserveNotification("lark", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitions.WithLabelValues("DRAFT", "PENDING_APPROVAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("APPROVE", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("APPROVE", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.notifications.WithLabelValues("lark", "false")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"approvalflow_instance_transitions_total",
		"approvalflow_actions_total",
		"approvalflow_notifications_total",
	}, names)
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() { NewCollector(reg) })
}
