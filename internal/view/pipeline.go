package view

import (
	"math"
	"sort"
	"strings"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

// TierFilter restricts the view to one tier; TierAll disables the constraint
type TierFilter string

const TierAll TierFilter = "ALL"

// BiasFilter restricts the view to one direction; BiasAll disables the constraint
type BiasFilter string

const (
	BiasAll     BiasFilter = "ALL"
	BiasBullish BiasFilter = BiasFilter(signal.Bullish)
	BiasBearish BiasFilter = BiasFilter(signal.Bearish)
)

// Filters are combined with AND. Zero values mean no constraint.
type Filters struct {
	Tier          TierFilter `json:"tier"`
	Bias          BiasFilter `json:"bias"`
	MinConfidence float64    `json:"min_confidence"`
}

// DefaultFilters returns the unconstrained filter set
func DefaultFilters() Filters {
	return Filters{Tier: TierAll, Bias: BiasAll}
}

// ParseTierFilter maps user input onto a tier filter; unknown values mean ALL
func ParseTierFilter(s string) TierFilter {
	if t, ok := quality.ParseTier(s); ok {
		return TierFilter(t)
	}
	return TierAll
}

// ParseBiasFilter maps user input onto a bias filter; unknown values mean ALL
func ParseBiasFilter(s string) BiasFilter {
	switch BiasFilter(strings.ToUpper(strings.TrimSpace(s))) {
	case BiasBullish:
		return BiasBullish
	case BiasBearish:
		return BiasBearish
	}
	return BiasAll
}

// Pipeline filters and sorts signals. It is stateless apart from the engine
// used to derive tiers and EV, so one pipeline can serve many views.
type Pipeline struct {
	engine *quality.Engine
}

// NewPipeline creates a pipeline deriving tiers and EV with engine
func NewPipeline(engine *quality.Engine) *Pipeline {
	if engine == nil {
		engine = quality.NewDefaultEngine()
	}
	return &Pipeline{engine: engine}
}

// Apply returns a new slice holding the signals that pass filters, stably
// sorted by spec. The input slice is never modified.
func (p *Pipeline) Apply(signals []signal.Signal, filters Filters, spec SortSpec) []signal.Signal {
	rows := p.selectRows(signals, filters)
	p.sortRows(rows, spec)

	out := make([]signal.Signal, len(rows))
	for i, r := range rows {
		out[i] = r.sig
	}
	return out
}

// ApplyAnnotated is Apply returning tier and EV alongside each signal, so the
// display uses exactly the values the sort used
func (p *Pipeline) ApplyAnnotated(signals []signal.Signal, filters Filters, spec SortSpec) []quality.Annotated {
	rows := p.selectRows(signals, filters)
	p.sortRows(rows, spec)

	out := make([]quality.Annotated, len(rows))
	for i, r := range rows {
		out[i] = quality.Annotated{Signal: r.sig, Tier: p.engine.Classify(r.sig.ConfidenceScore), EV: r.ev}
	}
	return out
}

type row struct {
	sig  signal.Signal
	tier quality.TierName
	ev   float64
}

func (p *Pipeline) selectRows(signals []signal.Signal, f Filters) []row {
	rows := make([]row, 0, len(signals))
	for _, s := range signals {
		tier := p.engine.TierOf(s.ConfidenceScore)

		if f.Tier != "" && f.Tier != TierAll && quality.TierName(f.Tier) != tier {
			continue
		}
		if f.Bias != "" && f.Bias != BiasAll && signal.Bias(f.Bias) != s.TrendBias {
			continue
		}
		if f.MinConfidence > 0 && !(s.ConfidenceScore >= f.MinConfidence) {
			continue
		}

		rows = append(rows, row{sig: s, tier: tier, ev: p.engine.ResolveEV(s)})
	}
	return rows
}

func (p *Pipeline) sortRows(rows []row, spec SortSpec) {
	spec = spec.normalized()
	less := lessFor(spec.Field)

	sort.SliceStable(rows, func(i, j int) bool {
		if spec.Direction == Asc {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
}

func lessFor(field SortField) func(a, b row) bool {
	switch field {
	case SortPair:
		return func(a, b row) bool { return a.sig.Pair < b.sig.Pair }
	case SortEV:
		return func(a, b row) bool { return key(a.ev) < key(b.ev) }
	case SortRiskReward:
		return func(a, b row) bool { return key(a.sig.RiskRewardOr(0)) < key(b.sig.RiskRewardOr(0)) }
	default:
		return func(a, b row) bool { return key(a.sig.ConfidenceScore) < key(b.sig.ConfidenceScore) }
	}
}

// key maps NaN to 0 so the comparator stays a strict weak ordering
func key(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
