package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/explain"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

func TestSignalsCSV(t *testing.T) {
	rr := 2.5
	engine := quality.NewDefaultEngine()
	rows := engine.Annotate([]signal.Signal{
		{
			ID: "a1", Pair: "BTC/USDT", ConfidenceScore: 82, TrendBias: signal.Bullish, PlanType: "SMC",
			EntryZone: signal.EntryZone{Low: 100, High: 101.5}, StopLoss: 95,
			TakeProfits: []float64{105, 110, 120}, RiskReward: &rr,
		},
		{ID: "a2", Pair: "ETH, USDT", ConfidenceScore: 60, TrendBias: signal.Bearish},
	})

	var buf bytes.Buffer
	require.NoError(t, SignalsCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, SignalHeader, records[0])

	first := records[1]
	assert.Equal(t, "BTC/USDT", first[1])
	assert.Equal(t, "TOP", first[2])
	assert.Equal(t, "3", first[3])
	assert.Equal(t, "101.5", first[8])
	assert.Equal(t, "105;110;120", first[10])
	assert.Equal(t, "2.5", first[11])

	second := records[2]
	assert.Equal(t, "ETH, USDT", second[1], "commas survive quoting")
	assert.Equal(t, "SOLID", second[2])
	assert.Equal(t, "", second[11])
}

func TestRejectionsCSV(t *testing.T) {
	ex := explain.NewExplainer(nil)
	breakdowns := ex.ExplainAll([]signal.RejectionRecord{
		signal.NewRejection("ADA/USDT", signal.ReasonNoData, "no candles", "t-9", nil),
	})

	var buf bytes.Buffer
	require.NoError(t, RejectionsCSV(&buf, breakdowns))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"ADA/USDT", "no_data", "warning", "generic"}, records[1][:4])
	assert.Equal(t, "t-9", records[1][5])
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, map[string]int{"n": 1}))

	var out map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 1, out["n"])
	assert.Contains(t, buf.String(), "\n  \"n\"")
}
