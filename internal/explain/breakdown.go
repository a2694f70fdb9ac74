package explain

import (
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

// Kind selects which section of a Breakdown is populated
type Kind string

const (
	KindSingle     Kind = "single"
	KindDual       Kind = "dual"
	KindTimeframes Kind = "timeframes"
	KindGeneric    Kind = "generic"
)

// Severity frames a rejection for display
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Breakdown is a render-agnostic explanation of one rejection. Exactly one of
// Confluence, Dual, Timeframes or Details is set, according to Kind. Record
// carries the original rejection so the breakdown serialises without loss.
type Breakdown struct {
	Symbol     string            `json:"symbol"`
	ReasonType signal.ReasonType `json:"reason_type"`
	Reason     string            `json:"reason"`
	TraceID    string            `json:"trace_id,omitempty"`
	Kind       Kind              `json:"kind"`
	Severity   Severity          `json:"severity"`
	Summary    string            `json:"summary"`

	Confluence *ConfluenceBreakdown `json:"confluence,omitempty"`
	Dual       *DualBreakdown       `json:"dual,omitempty"`
	Timeframes *TimeframeBreakdown  `json:"timeframes,omitempty"`
	Details    []signal.Field       `json:"details,omitempty"`

	Record signal.RejectionRecord `json:"record"`
}

// FactorContribution is one weighted factor: Contribution = Score × Weight
type FactorContribution struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Rationale    string  `json:"rationale,omitempty"`
}

// ConfluenceBreakdown decomposes a single-direction confluence score.
// Total = WeightedSum + SynergyBonus - ConflictPenalty.
type ConfluenceBreakdown struct {
	Factors         []FactorContribution `json:"factors"`
	WeightedSum     float64              `json:"weighted_sum"`
	SynergyBonus    float64              `json:"synergy_bonus"`
	ConflictPenalty float64              `json:"conflict_penalty"`
	Total           float64              `json:"total"`
	ReportedScore   float64              `json:"reported_score"`
	Threshold       float64              `json:"threshold"`
	Shortfall       float64              `json:"shortfall"`
}

// SideBreakdown is one direction of a dual-direction comparison
type SideBreakdown struct {
	Score           float64              `json:"score"`
	Factors         []FactorContribution `json:"factors"`
	WeightedSum     float64              `json:"weighted_sum"`
	SynergyBonus    float64              `json:"synergy_bonus"`
	ConflictPenalty float64              `json:"conflict_penalty"`
	Total           float64              `json:"total"`
	ClearsThreshold bool                 `json:"clears_threshold"`
}

// DualBreakdown compares bullish and bearish readings. Conflicted means the
// gap did not exceed MinGap, so neither direction was taken.
type DualBreakdown struct {
	Bullish    SideBreakdown `json:"bullish"`
	Bearish    SideBreakdown `json:"bearish"`
	Threshold  float64       `json:"threshold"`
	Gap        float64       `json:"gap"`
	MinGap     float64       `json:"min_gap"`
	Conflicted bool          `json:"conflicted"`
	Leading    signal.Bias   `json:"leading"`
}

// TimeframeBreakdown lists missing vs. required timeframes; Present is the
// required set minus the missing set
type TimeframeBreakdown struct {
	Missing  []string `json:"missing"`
	Required []string `json:"required"`
	Present  []string `json:"present"`
}
