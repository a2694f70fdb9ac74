package quality

import "fmt"

// Config holds the tunable constants of the quality engine
type Config struct {
	// Tier boundaries on the 0-100 confidence scale
	TopMin  float64 `yaml:"top_min" default:"80" validate:"gtfield=HighMin,lte=100"`
	HighMin float64 `yaml:"high_min" default:"65" validate:"gte=0"`

	// Expected-value fallback inputs
	DefaultRiskReward float64 `yaml:"default_risk_reward" default:"1.5" validate:"gt=0"`
	ProbFloor         float64 `yaml:"prob_floor" default:"0.2" validate:"gte=0,ltfield=ProbCeil"`
	ProbCeil          float64 `yaml:"prob_ceil" default:"0.85" validate:"lte=1"`
	LossMultiple      float64 `yaml:"loss_multiple" default:"1" validate:"gt=0"`

	// Minimum bullish/bearish separation before a direction is accepted
	DualDirectionMinGap float64 `yaml:"dual_direction_min_gap" default:"8" validate:"gte=0"`
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		TopMin:              80,
		HighMin:             65,
		DefaultRiskReward:   1.5,
		ProbFloor:           0.2,
		ProbCeil:            0.85,
		LossMultiple:        1.0,
		DualDirectionMinGap: 8,
	}
}

// Validate checks the constants are mutually consistent
func (c Config) Validate() error {
	if c.HighMin < 0 || c.TopMin > 100 || c.HighMin >= c.TopMin {
		return fmt.Errorf("tier thresholds must satisfy 0 <= high_min < top_min <= 100 (got %.2f, %.2f)", c.HighMin, c.TopMin)
	}
	if c.DefaultRiskReward <= 0 {
		return fmt.Errorf("default_risk_reward must be positive, got %.2f", c.DefaultRiskReward)
	}
	if c.ProbFloor < 0 || c.ProbCeil > 1 || c.ProbFloor >= c.ProbCeil {
		return fmt.Errorf("probability bounds must satisfy 0 <= floor < ceil <= 1 (got %.2f, %.2f)", c.ProbFloor, c.ProbCeil)
	}
	if c.LossMultiple <= 0 {
		return fmt.Errorf("loss_multiple must be positive, got %.2f", c.LossMultiple)
	}
	if c.DualDirectionMinGap < 0 {
		return fmt.Errorf("dual_direction_min_gap must be non-negative, got %.2f", c.DualDirectionMinGap)
	}
	return nil
}

// Describe returns a one-line summary for logs and the CLI
func (c Config) Describe() string {
	return fmt.Sprintf("Tiers: TOP ≥%.0f | HIGH ≥%.0f | EV: rr=%.2f p∈[%.2f,%.2f] | Dual gap: >%.1f",
		c.TopMin, c.HighMin, c.DefaultRiskReward, c.ProbFloor, c.ProbCeil, c.DualDirectionMinGap)
}
