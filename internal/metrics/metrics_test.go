package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stats"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func sampleStats() stats.ScanStatistics {
	return stats.ScanStatistics{
		PassRate:      40,
		AvgConfidence: 71.5,
		AvgEV:         0.42,
		LongCount:     3,
		ShortCount:    1,
		TierCounts: map[quality.TierName]int{
			quality.TierTop:   1,
			quality.TierHigh:  2,
			quality.TierSolid: 1,
		},
		RejectionCounts: map[signal.ReasonType]int{
			signal.ReasonLowConfluence: 5,
			signal.ReasonNoData:        1,
		},
	}
}

func TestObserve(t *testing.T) {
	m := NewRegistry()
	m.Observe(sampleStats())

	assert.Equal(t, 40.0, gaugeValue(t, m.PassRate))
	assert.Equal(t, 71.5, gaugeValue(t, m.AvgConfidence))
	assert.Equal(t, 0.42, gaugeValue(t, m.AvgEV))
	assert.Equal(t, 2.0, gaugeValue(t, m.TierSignals.WithLabelValues("HIGH")))
	assert.Equal(t, 5.0, gaugeValue(t, m.Rejections.WithLabelValues("low_confluence")))
	assert.Equal(t, 3.0, gaugeValue(t, m.BiasSignals.WithLabelValues("long")))
	assert.Equal(t, 1.0, counterValue(t, m.Ingests))
}

func TestObserveResetsStaleReasons(t *testing.T) {
	m := NewRegistry()
	m.Observe(sampleStats())

	next := sampleStats()
	next.RejectionCounts = map[signal.ReasonType]int{signal.ReasonRiskValidation: 2}
	m.Observe(next)

	assert.Equal(t, 0.0, gaugeValue(t, m.Rejections.WithLabelValues("no_data")))
	assert.Equal(t, 2.0, gaugeValue(t, m.Rejections.WithLabelValues("risk_validation")))
	assert.Equal(t, 2.0, counterValue(t, m.Ingests))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.RecordUpstreamError("timeout")

	assert.Equal(t, 1.0, counterValue(t, a.UpstreamErrors.WithLabelValues("timeout")))
	assert.Equal(t, 0.0, counterValue(t, b.UpstreamErrors.WithLabelValues("timeout")))
}

func TestStepTimer(t *testing.T) {
	m := NewRegistry()
	m.StartStepTimer("aggregate").Stop("success")

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "snipersight_step_duration_seconds" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, uint64(1), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestHandler(t *testing.T) {
	m := NewRegistry()
	m.Observe(sampleStats())

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rr.Code)
	assert.Contains(t, string(body), "snipersight_scan_pass_rate_percent 40")
	assert.Contains(t, string(body), `snipersight_scan_signals{tier="TOP"} 1`)
}
