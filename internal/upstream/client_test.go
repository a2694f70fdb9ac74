package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

const batchJSON = `{
	"signals": [
		{"id": "s1", "pair": "BTC/USDT", "confidence_score": 82, "trend_bias": "BULLISH",
		 "entry_zone": {"low": 100, "high": 102}, "stop_loss": 95, "take_profits": [105, 110, 118],
		 "risk_reward": 2.0, "plan_type": "SMC"}
	],
	"rejections": [
		{"symbol": "ETH/USDT", "reason_type": "missing_critical_tf", "reason": "no 1D",
		 "missing_timeframes": ["1D"], "required_timeframes": ["1D", "4H", "1H"]}
	],
	"metadata": {"mode": "strike", "min_score": 65, "timeframes": ["1D", "4H", "1H"], "leverage": 5}
}`

func testConfig(url string) Config {
	return Config{
		BaseURL: url,
		Path:    "/api/scan",
		Timeout: time.Second,
		RPS:     100,
		Burst:   10,
		Breaker: BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: 2},
	}
}

func TestFetchBatch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scan", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(batchJSON))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client())
	batch, err := client.FetchBatch(context.Background(), Params{Mode: "strike", MinScore: 65, Timeframes: []string{"1D", "4H"}})
	require.NoError(t, err)

	require.Len(t, batch.Signals, 1)
	assert.Equal(t, "BTC/USDT", batch.Signals[0].Pair)
	require.Len(t, batch.Rejections, 1)
	assert.Equal(t, signal.KindTimeframes, batch.Rejections[0].Payload.Kind())
	assert.Equal(t, "strike", batch.Metadata.Mode)

	assert.Contains(t, gotQuery, "sniper_mode=strike")
	assert.Contains(t, gotQuery, "min_score=65")
	assert.Contains(t, gotQuery, "timeframes=1D%2C4H")
}

func TestFetchBatchNotConfigured(t *testing.T) {
	client := NewClient(Config{}, nil)
	_, err := client.FetchBatch(context.Background(), Params{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFetchBatchBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.FetchBatch(ctx, Params{})
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.FetchBatch(ctx, Params{})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchBatchBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"signals": [`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client())
	_, err := client.FetchBatch(context.Background(), Params{})
	assert.ErrorContains(t, err, "decode upstream batch")
}

func TestFetchBatchRespectsContext(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.RPS = 0.001
	cfg.Burst = 1
	client := NewClient(cfg, nil)

	// drain the single token
	client.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := client.FetchBatch(ctx, Params{})
	assert.ErrorContains(t, err, "rate limiter")
}
