package quality

import (
	"encoding/json"
	"math"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

// Engine classifies signals and resolves their expected value. It holds only
// immutable configuration and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine from cfg. Invalid configs fall back to defaults
// so a bad reload can never break classification.
func NewEngine(cfg Config) *Engine {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// NewDefaultEngine creates an engine with DefaultConfig
func NewDefaultEngine() *Engine {
	return &Engine{cfg: DefaultConfig()}
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// ResolveEV returns the expected value of s in R multiples. An upstream value
// is authoritative; otherwise EV = p*rr - (1-p)*loss with p clamped to
// [ProbFloor, ProbCeil] so extreme confidence cannot produce unrealistic EV.
func (e *Engine) ResolveEV(s signal.Signal) float64 {
	if s.ExpectedValue != nil && finite(*s.ExpectedValue) {
		return *s.ExpectedValue
	}

	rr := s.RiskRewardOr(e.cfg.DefaultRiskReward)
	p := e.WinProbability(s.ConfidenceScore)
	return p*rr - (1-p)*e.cfg.LossMultiple
}

// WinProbability maps a confidence score onto the clamped win probability
func (e *Engine) WinProbability(confidence float64) float64 {
	if !finite(confidence) {
		confidence = 0
	}
	return clamp(confidence/100, e.cfg.ProbFloor, e.cfg.ProbCeil)
}

// Annotated is a signal with its derived tier and EV
type Annotated struct {
	signal.Signal
	Tier Tier    `json:"tier"`
	EV   float64 `json:"ev"`
}

// UnmarshalJSON keeps the embedded signal's lenient decoding from hiding the
// tier and ev fields
func (a *Annotated) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &a.Signal); err != nil {
		return err
	}
	var derived struct {
		Tier Tier    `json:"tier"`
		EV   float64 `json:"ev"`
	}
	if err := json.Unmarshal(data, &derived); err != nil {
		return err
	}
	a.Tier, a.EV = derived.Tier, derived.EV
	return nil
}

// Annotate derives tier and EV for every signal, preserving order
func (e *Engine) Annotate(signals []signal.Signal) []Annotated {
	out := make([]Annotated, len(signals))
	for i, s := range signals {
		out[i] = Annotated{
			Signal: s,
			Tier:   e.Classify(s.ConfidenceScore),
			EV:     e.ResolveEV(s),
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
