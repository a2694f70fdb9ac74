package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/store"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "snipersight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, quality.DefaultConfig(), cfg.Engine)
	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, store.BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "/api/scan", cfg.Upstream.Path)
	assert.Equal(t, uint32(3), cfg.Upstream.Breaker.ConsecutiveFailures)
	assert.Equal(t, 24*time.Hour, cfg.Scan.SnapshotTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
engine:
  top_min: 85
  high_min: 70
  dual_direction_min_gap: 10
http:
  port: 9090
store:
  backend: redis
  redis:
    addr: cache:6379
upstream:
  base_url: http://pipeline:8000
  timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 85.0, cfg.Engine.TopMin)
	assert.Equal(t, 70.0, cfg.Engine.HighMin)
	assert.Equal(t, 1.5, cfg.Engine.DefaultRiskReward)
	assert.Equal(t, 10.0, cfg.Engine.DualDirectionMinGap)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Upstream.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "http:\n  port: 9090\n")
	t.Setenv("SNIPERSIGHT_HTTP_PORT", "7000")
	t.Setenv("UPSTREAM_URL", "http://env-pipeline")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.HTTP.Port)
	assert.Equal(t, "http://env-pipeline", cfg.Upstream.BaseURL)
	assert.Equal(t, store.BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis:6380", cfg.Store.Redis.Addr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want string
	}{
		{"inverted tiers", "engine:\n  top_min: 60\n  high_min: 70\n", "TopMin"},
		{"bad backend", "store:\n  backend: etcd\n", "must be one of"},
		{"postgres without dsn", "store:\n  backend: postgres\n", "dsn is required"},
		{"bad port", "http:\n  port: 70000\n", "Port"},
		{"bad yaml", "engine: [", "failed to parse"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tc.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func startWatch(t *testing.T, path string) (<-chan *Config, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { changes <- c }) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	return changes, func() {
		cancel()
		assert.NoError(t, <-done)
	}
}

// waitForTopMin drains reloads until one carries want; truncate and write
// can surface as separate events
func waitForTopMin(t *testing.T, changes <-chan *Config, want float64) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.Engine.TopMin == want {
				return
			}
		case <-deadline:
			t.Fatalf("no reload with top_min %.0f observed", want)
		}
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "engine:\n  top_min: 80\n")
	changes, stop := startWatch(t, path)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  top_min: 90\n"), 0644))
	waitForTopMin(t, changes, 90)
}

func TestWatchSurvivesAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "engine:\n  top_min: 80\n")
	changes, stop := startWatch(t, path)
	defer stop()

	tmp := filepath.Join(dir, "snipersight.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("engine:\n  top_min: 85\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))
	waitForTopMin(t, changes, 85)

	require.NoError(t, os.WriteFile(path, []byte("engine:\n  top_min: 90\n"), 0644))
	waitForTopMin(t, changes, 90)
}

func TestWatchIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "engine:\n  top_min: 80\n")
	changes, stop := startWatch(t, path)
	defer stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("engine:\n  top_min: 95\n"), 0644))

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload with top_min %.0f", cfg.Engine.TopMin)
	case <-time.After(300 * time.Millisecond):
	}
}
