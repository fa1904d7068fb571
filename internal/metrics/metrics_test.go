package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAndGauges(t *testing.T) {
	m := NewMetrics()

	m.IncrementCounter("applications.created")
	m.IncrementCounter("applications.created")
	m.SetGauge("goroutines", 7)

	require.Equal(t, int64(2), m.GetCounters()["applications.created"])
	require.Equal(t, int64(7), m.GetGauges()["goroutines"])
}

func TestTimers(t *testing.T) {
	m := NewMetrics()

	m.RecordTimer("create_application", 10)
	m.RecordTimer("create_application", 30)

	timer := m.GetTimers()["create_application"]
	require.Equal(t, int64(2), timer.Count)
	require.Equal(t, int64(40), timer.TotalTimeMs)
	require.Equal(t, 20.0, timer.AverageTimeMs)
	require.Equal(t, int64(10), timer.MinTimeMs)
	require.Equal(t, int64(30), timer.MaxTimeMs)
}

func TestErrorRates(t *testing.T) {
	m := NewMetrics()

	m.RecordSuccess("transition")
	m.RecordSuccess("transition")
	m.RecordError("transition")
	m.RecordSuccess("transition")

	rate := m.GetErrorRates()["transition"]
	require.Equal(t, int64(4), rate.Total)
	require.Equal(t, int64(1), rate.Errors)
	require.Equal(t, 25.0, rate.ErrorRate)
}

func TestHealthChecks(t *testing.T) {
	m := NewMetrics()

	m.SetHealth("database", true)
	m.SetHealth("service_bus", false)

	checks := m.GetHealthChecks()
	require.True(t, checks["database"])
	require.False(t, checks["service_bus"])
}
