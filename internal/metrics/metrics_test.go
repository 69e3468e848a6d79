package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncRequest("approved")
		IncTransition("cancelled")
		IncContentionRetry()
		IncWaitlist("notified")
		AddSweepCompleted(2)
		IncNotification("amqp", "delivered")
		SetNotificationQueueDepth(3)
		ObserveLockWait(0.001)
	})
}

func TestRegisteredNames(t *testing.T) {
	Register()
	IncNotification("telegram", "dropped")
	AddSweepCompleted(1)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["reservation_engine_notifications_total"])
	assert.True(t, names["reservation_engine_sweep_completed_total"])
}
