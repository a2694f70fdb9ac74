package signal

import (
	"fmt"
	"math"
	"time"
)

// Bias is the directional read of a signal
type Bias string

const (
	Bullish Bias = "BULLISH"
	Bearish Bias = "BEARISH"
	Neutral Bias = "NEUTRAL"
)

// Classification is the holding horizon of a signal
type Classification string

const (
	Swing Classification = "SWING"
	Scalp Classification = "SCALP"
)

// PlanType identifies how the upstream producer built the trade plan
type PlanType string

const (
	PlanSMC         PlanType = "SMC"
	PlanHybrid      PlanType = "HYBRID"
	PlanATRFallback PlanType = "ATR_FALLBACK"
)

// MinTakeProfits is the minimum number of targets an accepted plan carries
const MinTakeProfits = 3

// EntryZone is the price band in which the plan expects to fill
type EntryZone struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Mid returns the midpoint of the zone
func (z EntryZone) Mid() float64 {
	return (z.Low + z.High) / 2
}

// ReversalContext describes a counter-trend setup detected upstream
type ReversalContext struct {
	IsReversal    bool    `json:"is_reversal"`
	Direction     string  `json:"direction,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	HTFBypass     bool    `json:"htf_bypass_active,omitempty"`
	Rationale     string  `json:"rationale,omitempty"`
	CycleAligned  bool    `json:"cycle_aligned,omitempty"`
	ChochDetected bool    `json:"choch_detected,omitempty"`
}

// RegimeMeta is the market regime snapshot attached to a signal
type RegimeMeta struct {
	Composite    string  `json:"composite,omitempty"`
	Score        float64 `json:"score,omitempty"`
	Trend        string  `json:"trend,omitempty"`
	Volatility   string  `json:"volatility,omitempty"`
	RiskAppetite string  `json:"risk_appetite,omitempty"`
}

// Signal is an accepted candidate with a full trade plan. Signals are owned by
// the upstream producer and treated as immutable snapshots.
type Signal struct {
	ID              string           `json:"id"`
	Pair            string           `json:"pair"`
	ConfidenceScore float64          `json:"confidence_score"`
	TrendBias       Bias             `json:"trend_bias"`
	Classification  Classification   `json:"classification"`
	EntryZone       EntryZone        `json:"entry_zone"`
	StopLoss        float64          `json:"stop_loss"`
	TakeProfits     []float64        `json:"take_profits"`
	RiskReward      *float64         `json:"risk_reward,omitempty"`
	PlanType        PlanType         `json:"plan_type"`
	ExpectedValue   *float64         `json:"expected_value,omitempty"`
	Reversal        *ReversalContext `json:"reversal_context,omitempty"`
	Regime          *RegimeMeta      `json:"regime,omitempty"`
}

// RiskRewardOr returns the risk:reward ratio or fallback when absent or not finite
func (s Signal) RiskRewardOr(fallback float64) float64 {
	if s.RiskReward == nil || !isFinite(*s.RiskReward) {
		return fallback
	}
	return *s.RiskReward
}

// Validate reports the first invariant the signal violates. The analytics
// engine never calls it; it is used at the upstream boundary for logging.
func (s Signal) Validate() error {
	if !isFinite(s.ConfidenceScore) || s.ConfidenceScore < 0 || s.ConfidenceScore > 100 {
		return fmt.Errorf("confidence %.2f outside [0,100]", s.ConfidenceScore)
	}
	if s.EntryZone.Low <= 0 || s.EntryZone.High <= 0 {
		return fmt.Errorf("entry zone must be positive (low=%.6g high=%.6g)", s.EntryZone.Low, s.EntryZone.High)
	}
	if s.EntryZone.Low > s.EntryZone.High {
		return fmt.Errorf("entry zone low %.6g above high %.6g", s.EntryZone.Low, s.EntryZone.High)
	}
	if s.StopLoss <= 0 {
		return fmt.Errorf("stop loss must be positive")
	}
	if len(s.TakeProfits) < MinTakeProfits {
		return fmt.Errorf("need at least %d take-profit levels, got %d", MinTakeProfits, len(s.TakeProfits))
	}
	if s.RiskReward != nil && *s.RiskReward < 0 {
		return fmt.Errorf("risk:reward %.2f is negative", *s.RiskReward)
	}

	switch s.TrendBias {
	case Bullish:
		if s.StopLoss >= s.EntryZone.Low {
			return fmt.Errorf("bullish stop %.6g not below entry %.6g", s.StopLoss, s.EntryZone.Low)
		}
		if s.TakeProfits[0] < s.EntryZone.High {
			return fmt.Errorf("bullish first target %.6g below entry %.6g", s.TakeProfits[0], s.EntryZone.High)
		}
		for i := 1; i < len(s.TakeProfits); i++ {
			if s.TakeProfits[i] <= s.TakeProfits[i-1] {
				return fmt.Errorf("bullish targets not strictly ascending at index %d", i)
			}
		}
	case Bearish:
		if s.StopLoss <= s.EntryZone.High {
			return fmt.Errorf("bearish stop %.6g not above entry %.6g", s.StopLoss, s.EntryZone.High)
		}
		if s.TakeProfits[0] > s.EntryZone.Low {
			return fmt.Errorf("bearish first target %.6g above entry %.6g", s.TakeProfits[0], s.EntryZone.Low)
		}
		for i := 1; i < len(s.TakeProfits); i++ {
			if s.TakeProfits[i] >= s.TakeProfits[i-1] {
				return fmt.Errorf("bearish targets not strictly descending at index %d", i)
			}
		}
	}

	return nil
}

// ScanMetadata describes the scan that produced a batch
type ScanMetadata struct {
	ScanID     string    `json:"scan_id,omitempty"`
	Mode       string    `json:"mode"`
	MinScore   float64   `json:"min_score"`
	Timeframes []string  `json:"timeframes"`
	Leverage   float64   `json:"leverage"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// Batch is one upstream scan response
type Batch struct {
	Signals    []Signal          `json:"signals"`
	Rejections []RejectionRecord `json:"rejections"`
	Metadata   ScanMetadata      `json:"metadata"`

	// Dropped counts records skipped while decoding
	Dropped int `json:"-"`
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
