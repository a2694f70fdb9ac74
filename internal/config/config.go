package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/logging"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/store"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/upstream"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "config/snipersight.yaml"

// Config is the full application configuration
type Config struct {
	Engine   quality.Config  `yaml:"engine"`
	HTTP     HTTPConfig      `yaml:"http"`
	Scan     ScanConfig      `yaml:"scan"`
	Store    store.Config    `yaml:"store"`
	Upstream upstream.Config `yaml:"upstream"`
	Log      logging.Config  `yaml:"log"`
}

// HTTPConfig configures the read API
type HTTPConfig struct {
	Host         string        `yaml:"host" default:"127.0.0.1"`
	Port         int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
}

// ScanConfig configures how batches are requested and retained
type ScanConfig struct {
	Mode        string        `yaml:"mode" default:"recon"`
	MinScore    float64       `yaml:"min_score" validate:"gte=0,lte=100"`
	Leverage    float64       `yaml:"leverage" default:"1" validate:"gte=0"`
	Timeframes  []string      `yaml:"timeframes"`
	Symbols     []string      `yaml:"symbols"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"24h"`
}

var validate = validator.New()

// Default returns a config populated only from struct defaults
func Default() (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return &cfg, nil
}

// Load reads path, applies defaults, environment overrides and validation.
// A missing file at DefaultPath is not an error; defaults are used instead.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate runs struct tag validation and the engine's consistency checks
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Store.Backend == store.BackendPostgres && c.Store.Postgres.DSN == "" {
		return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SNIPERSIGHT_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.Backend = store.BackendRedis
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Store.Backend = store.BackendPostgres
		cfg.Store.Postgres.DSN = v
	}
	if v := os.Getenv("UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("SNIPERSIGHT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Namespace(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "gt", "gte", "lt", "lte", "gtfield", "ltfield":
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
