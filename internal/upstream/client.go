package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

// Config configures the analysis pipeline client
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	Path         string        `yaml:"path" default:"/api/scan"`
	Timeout      time.Duration `yaml:"timeout" default:"15s"`
	RPS          float64       `yaml:"rps" default:"1" validate:"gt=0"`
	Burst        int           `yaml:"burst" default:"2" validate:"gte=1"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" default:"16777216"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around upstream calls
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests" default:"1"`
	Interval            time.Duration `yaml:"interval" default:"60s"`
	Timeout             time.Duration `yaml:"timeout" default:"30s"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"3"`
}

// Params narrows one scan request
type Params struct {
	Mode       string
	MinScore   float64
	Leverage   float64
	Timeframes []string
	Symbols    []string
}

// Client fetches scan batches from the upstream analysis pipeline
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var (
	// ErrNotConfigured is returned when no base URL is set
	ErrNotConfigured = errors.New("upstream base URL not configured")
	// ErrBreakerOpen is returned while the circuit breaker rejects calls
	ErrBreakerOpen = errors.New("upstream circuit breaker open")
)

// NewClient builds a client; a nil httpClient uses a client with cfg.Timeout
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}

	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 3
	}
	settings := gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Upstream circuit breaker state change")
		},
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// BreakerState reports the circuit breaker state for health output
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// FetchBatch requests one scan batch. Signals violating their invariants are
// logged but kept; the analytics layer tolerates them.
func (c *Client) FetchBatch(ctx context.Context, p Params) (signal.Batch, error) {
	if c.cfg.BaseURL == "" {
		return signal.Batch{}, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return signal.Batch{}, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint, err := c.endpoint(p)
	if err != nil {
		return signal.Batch{}, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return signal.Batch{}, fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return signal.Batch{}, err
	}

	batch := result.(signal.Batch)
	for _, s := range batch.Signals {
		if verr := s.Validate(); verr != nil {
			log.Warn().Str("pair", s.Pair).Str("id", s.ID).Err(verr).Msg("Upstream signal violates invariants")
		}
	}
	return batch, nil
}

func (c *Client) endpoint(p Params) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.Path)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL: %w", err)
	}

	q := u.Query()
	if p.Mode != "" {
		q.Set("sniper_mode", p.Mode)
	}
	if p.MinScore > 0 {
		q.Set("min_score", fmt.Sprintf("%g", p.MinScore))
	}
	if p.Leverage > 0 {
		q.Set("leverage", fmt.Sprintf("%g", p.Leverage))
	}
	if len(p.Timeframes) > 0 {
		q.Set("timeframes", strings.Join(p.Timeframes, ","))
	}
	if len(p.Symbols) > 0 {
		q.Set("symbols", strings.Join(p.Symbols, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, endpoint string) (signal.Batch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return signal.Batch{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", endpoint).Msg("Upstream scan request failed")
		return signal.Batch{}, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return signal.Batch{}, fmt.Errorf("read upstream body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return signal.Batch{}, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var batch signal.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		return signal.Batch{}, fmt.Errorf("decode upstream batch: %w", err)
	}

	log.Debug().
		Str("url", endpoint).
		Int("signals", len(batch.Signals)).
		Int("rejections", len(batch.Rejections)).
		Dur("latency", time.Since(start)).
		Msg("Fetched upstream batch")

	return batch, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
