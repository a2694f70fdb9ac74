package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalDecodeAcceptsNumericStrings(t *testing.T) {
	var s Signal
	err := json.Unmarshal([]byte(`{
		"id": "sig-1",
		"pair": "BTC/USDT",
		"confidence_score": "82",
		"trend_bias": "BULLISH",
		"classification": "SWING",
		"entry_zone": {"low": "100", "high": 102},
		"stop_loss": " 95 ",
		"take_profits": [105, "110", 118],
		"risk_reward": "2.0",
		"plan_type": "SMC"
	}`), &s)
	require.NoError(t, err)

	assert.Equal(t, validLong(), s)
}

func TestSignalDecodeMalformedNumbersFallBack(t *testing.T) {
	var s Signal
	err := json.Unmarshal([]byte(`{
		"pair": "ETH/USDT",
		"confidence_score": {"bad": true},
		"risk_reward": "n/a",
		"expected_value": "",
		"take_profits": "oops",
		"regime": {"score": "high"}
	}`), &s)
	require.NoError(t, err)

	assert.Equal(t, "ETH/USDT", s.Pair)
	assert.Equal(t, 0.0, s.ConfidenceScore)
	assert.Nil(t, s.RiskReward)
	assert.Nil(t, s.ExpectedValue)
	assert.Nil(t, s.TakeProfits)
	assert.Nil(t, s.Regime)
}

func TestSignalRoundTrip(t *testing.T) {
	in := validLong()
	ev := 0.4
	in.ExpectedValue = &ev
	in.Reversal = &ReversalContext{IsReversal: true, Direction: "LONG", Confidence: 70}
	in.Regime = &RegimeMeta{Composite: "risk_on", Score: 0.6}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Signal
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestBatchDecodeSkipsBadRecords(t *testing.T) {
	var b Batch
	err := json.Unmarshal([]byte(`{
		"signals": [
			{"pair": "BTC/USDT", "confidence_score": "84"},
			"not a signal",
			{"pair": "SOL/USDT", "confidence_score": 55}
		],
		"rejections": [
			{"symbol": "XRP/USDT", "reason_type": "no_data", "reason": "empty"},
			42
		],
		"metadata": {"mode": "recon", "min_score": "50", "leverage": "5", "timeframes": ["4H", "1H"], "scanned_at": "2025-06-01T09:30:00Z"}
	}`), &b)
	require.NoError(t, err)

	require.Len(t, b.Signals, 2)
	assert.Equal(t, 84.0, b.Signals[0].ConfidenceScore)
	assert.Equal(t, "SOL/USDT", b.Signals[1].Pair)
	require.Len(t, b.Rejections, 1)
	assert.Equal(t, 2, b.Dropped)

	assert.Equal(t, 50.0, b.Metadata.MinScore)
	assert.Equal(t, 5.0, b.Metadata.Leverage)
	assert.Equal(t, []string{"4H", "1H"}, b.Metadata.Timeframes)
	assert.Equal(t, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), b.Metadata.ScannedAt)
}

func TestBatchDecodeRejectsTruncatedJSON(t *testing.T) {
	var b Batch
	assert.Error(t, json.Unmarshal([]byte(`{"signals": [`), &b))
}
