package explain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

func decode(t *testing.T, raw string) signal.RejectionRecord {
	t.Helper()
	var rec signal.RejectionRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

func TestExplainSingleDirection(t *testing.T) {
	rec := decode(t, `{
		"symbol": "BTC/USDT",
		"reason_type": "low_confluence",
		"reason": "Confluence 58.0 < 65.0",
		"score": 58,
		"threshold": 65,
		"all_factors": [
			{"name": "htf_alignment", "score": 80, "weight": 0.4},
			{"name": "order_block", "score": 50, "weight": 0.35},
			{"name": "momentum", "score": 30, "weight": 0.25}
		],
		"synergy_bonus": 5,
		"conflict_penalty": 8
	}`)

	b := NewExplainer(nil).Explain(rec)

	require.Equal(t, KindSingle, b.Kind)
	require.NotNil(t, b.Confluence)
	assert.Nil(t, b.Dual)
	assert.Equal(t, SeverityInfo, b.Severity)

	c := b.Confluence
	require.Len(t, c.Factors, 3)
	assert.Equal(t, "htf_alignment", c.Factors[0].Name)
	assert.InDelta(t, 32.0, c.Factors[0].Contribution, 1e-9)
	assert.InDelta(t, 17.5, c.Factors[1].Contribution, 1e-9)
	assert.InDelta(t, 7.5, c.Factors[2].Contribution, 1e-9)
	assert.InDelta(t, 57.0, c.WeightedSum, 1e-9)
	assert.InDelta(t, 54.0, c.Total, 1e-9)
	assert.InDelta(t, 7.0, c.Shortfall, 1e-9)
	assert.Equal(t, 65.0, c.Threshold)
}

func TestExplainDualDirectionGap(t *testing.T) {
	rec := decode(t, `{
		"symbol": "ETH/USDT",
		"reason_type": "low_confluence",
		"reason": "Conflicted",
		"threshold": 65,
		"bullish_score": 72.5,
		"bearish_score": 68,
		"bullish_factors": [{"name": "trend", "score": 90, "weight": 0.5}],
		"bearish_factors": [{"name": "divergence", "score": 70, "weight": 0.5}],
		"bullish_synergy": 3,
		"bearish_synergy": 1,
		"bullish_conflict": 2,
		"bearish_conflict": 4
	}`)

	b := NewExplainer(nil).Explain(rec)

	require.Equal(t, KindDual, b.Kind)
	require.NotNil(t, b.Dual)
	d := b.Dual
	assert.InDelta(t, math.Abs(72.5-68), d.Gap, 1e-9)
	assert.Equal(t, 8.0, d.MinGap)
	assert.True(t, d.Conflicted)
	assert.Equal(t, signal.Bullish, d.Leading)
	assert.True(t, d.Bullish.ClearsThreshold)
	assert.True(t, d.Bearish.ClearsThreshold)
	assert.InDelta(t, 45.0+3-2, d.Bullish.Total, 1e-9)
	assert.InDelta(t, 35.0+1-4, d.Bearish.Total, 1e-9)
	require.Len(t, d.Bearish.Factors, 1)
	assert.Equal(t, "divergence", d.Bearish.Factors[0].Name)
}

func TestExplainDualDirectionRespectsConfiguredGap(t *testing.T) {
	cfg := quality.DefaultConfig()
	cfg.DualDirectionMinGap = 3
	explainer := NewExplainer(quality.NewEngine(cfg))

	rec := signal.NewRejection("SOL/USDT", signal.ReasonLowConfluence, "x", "", signal.DualDirectionPayload{
		Threshold: 60,
		Bullish:   signal.DirectionScore{Score: 61},
		Bearish:   signal.DirectionScore{Score: 66},
	})

	b := explainer.Explain(rec)
	require.NotNil(t, b.Dual)
	assert.Equal(t, 5.0, b.Dual.Gap)
	assert.False(t, b.Dual.Conflicted)
	assert.Equal(t, signal.Bearish, b.Dual.Leading)
}

func TestExplainDualDirectionSummary(t *testing.T) {
	cfg := quality.DefaultConfig()
	cfg.DualDirectionMinGap = 3
	explainer := NewExplainer(quality.NewEngine(cfg))

	testCases := []struct {
		name    string
		bull    float64
		bear    float64
		summary string
	}{
		{"conflicted", 70, 68, "Conflicted market"},
		{"bearish clears", 61, 66, "only bearish cleared 65.0"},
		{"bullish clears", 72, 60, "only bullish cleared 65.0"},
		{"both clear", 80, 66, "both sides cleared 65.0"},
		{"neither clears", 50, 40, "neither side cleared 65.0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := signal.NewRejection("SOL/USDT", signal.ReasonLowConfluence, "x", "", signal.DualDirectionPayload{
				Threshold: 65,
				Bullish:   signal.DirectionScore{Score: tc.bull},
				Bearish:   signal.DirectionScore{Score: tc.bear},
			})
			b := explainer.Explain(rec)
			require.NotNil(t, b.Dual)
			assert.Contains(t, b.Summary, tc.summary)
		})
	}
}

func TestExplainMissingTimeframes(t *testing.T) {
	rec := decode(t, `{"symbol":"SOL/USDT","reason_type":"missing_critical_tf","reason":"missing","missing_timeframes":["1D"],"required_timeframes":["1D","4H","1H"]}`)

	b := NewExplainer(nil).Explain(rec)

	require.Equal(t, KindTimeframes, b.Kind)
	require.NotNil(t, b.Timeframes)
	assert.Equal(t, []string{"1D"}, b.Timeframes.Missing)
	assert.Len(t, b.Timeframes.Required, 3)
	assert.Equal(t, []string{"4H", "1H"}, b.Timeframes.Present)
	assert.Equal(t, SeverityWarning, b.Severity)
}

func TestExplainGenericExcludesStandardFields(t *testing.T) {
	rec := decode(t, `{"symbol":"AVAX/USDT","reason_type":"risk_validation","reason":"RR 0.8 < 1.5","trace_id":"t-1","risk_reward":0.8,"min_rr":1.5}`)

	b := NewExplainer(nil).Explain(rec)

	require.Equal(t, KindGeneric, b.Kind)
	require.Len(t, b.Details, 2)
	assert.Equal(t, "risk_reward", b.Details[0].Key)
	assert.Equal(t, "min_rr", b.Details[1].Key)
	assert.Equal(t, "RR 0.8 < 1.5", b.Summary)
	assert.Equal(t, "t-1", b.TraceID)
}

func TestExplainUnknownReasonDegrades(t *testing.T) {
	rec := decode(t, `{"symbol":"DOGE/USDT","reason_type":"moon_phase","reason":"waning","phase":0.3}`)

	var b Breakdown
	assert.NotPanics(t, func() { b = NewExplainer(nil).Explain(rec) })

	assert.Equal(t, KindGeneric, b.Kind)
	assert.Equal(t, SeverityError, b.Severity)
	assert.NotNil(t, b.Details)
	require.Len(t, b.Details, 1)
	assert.Equal(t, "phase", b.Details[0].Key)
	assert.Contains(t, b.Summary, "moon_phase")
}

func TestExplainZeroRecord(t *testing.T) {
	var b Breakdown
	assert.NotPanics(t, func() { b = NewExplainer(nil).Explain(signal.RejectionRecord{}) })
	assert.Equal(t, KindGeneric, b.Kind)
	assert.NotNil(t, b.Details)
}

func TestBreakdownSerialisesOriginalRecord(t *testing.T) {
	raw := `{"symbol":"BTC/USDT","reason_type":"no_trade_plan","reason":"no OB","trace_id":"x9","attempted":["SMC","HYBRID"]}`
	rec := decode(t, raw)

	out, err := json.Marshal(NewExplainer(nil).Explain(rec))
	require.NoError(t, err)

	var envelope struct {
		Record json.RawMessage `json:"record"`
		Kind   Kind            `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(out, &envelope))
	assert.JSONEq(t, raw, string(envelope.Record))
	assert.Equal(t, KindGeneric, envelope.Kind)
}

func TestExplainAllPreservesOrder(t *testing.T) {
	records := []signal.RejectionRecord{
		signal.NewRejection("A", signal.ReasonNoData, "", "", nil),
		signal.NewRejection("B", signal.ReasonErrors, "", "", nil),
	}
	out := NewExplainer(nil).ExplainAll(records)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Symbol)
	assert.Equal(t, SeverityError, out[1].Severity)
}
