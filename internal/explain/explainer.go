package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

// Explainer turns rejection records into structured breakdowns
type Explainer struct {
	minGap float64
}

// NewExplainer creates an explainer using the dual-direction gap from engine
func NewExplainer(engine *quality.Engine) *Explainer {
	if engine == nil {
		engine = quality.NewDefaultEngine()
	}
	return &Explainer{minGap: engine.Config().DualDirectionMinGap}
}

var severities = map[signal.ReasonType]Severity{
	signal.ReasonLowConfluence:     SeverityInfo,
	signal.ReasonCooldownActive:    SeverityInfo,
	signal.ReasonNoData:            SeverityWarning,
	signal.ReasonMissingCriticalTF: SeverityWarning,
	signal.ReasonRiskValidation:    SeverityWarning,
	signal.ReasonNoTradePlan:       SeverityWarning,
	signal.ReasonErrors:            SeverityError,
}

// SeverityOf returns the display severity of a reason; unknown reasons are errors
func SeverityOf(reason signal.ReasonType) Severity {
	if s, ok := severities[reason]; ok {
		return s
	}
	return SeverityError
}

// Explain builds the breakdown for one rejection. It never panics: unknown
// reason types and missing payloads degrade to the generic breakdown.
func (e *Explainer) Explain(rec signal.RejectionRecord) Breakdown {
	b := Breakdown{
		Symbol:     rec.Symbol,
		ReasonType: rec.ReasonType,
		Reason:     rec.Reason,
		TraceID:    rec.TraceID,
		Severity:   SeverityOf(rec.ReasonType),
		Record:     rec,
	}

	switch p := rec.Payload.(type) {
	case signal.DualDirectionPayload:
		b.Kind = KindDual
		b.Dual = e.dual(p)
		b.Summary = dualSummary(b.Dual)
	case signal.LowConfluencePayload:
		b.Kind = KindSingle
		b.Confluence = single(p)
		b.Summary = fmt.Sprintf("Confluence %.1f below threshold %.1f (short by %.1f)",
			b.Confluence.ReportedScore, b.Confluence.Threshold, b.Confluence.Shortfall)
	case signal.MissingTimeframesPayload:
		b.Kind = KindTimeframes
		b.Timeframes = timeframes(p)
		b.Summary = fmt.Sprintf("Missing %d of %d required timeframes: %s",
			len(b.Timeframes.Missing), len(b.Timeframes.Required), strings.Join(b.Timeframes.Missing, ", "))
	default:
		b.Kind = KindGeneric
		b.Details = generic(rec)
		b.Summary = rec.Reason
		if !rec.ReasonType.Known() {
			b.Summary = fmt.Sprintf("Unrecognized rejection type %q: %s", rec.ReasonType, rec.Reason)
		}
	}

	return b
}

// ExplainAll explains every record, preserving order
func (e *Explainer) ExplainAll(records []signal.RejectionRecord) []Breakdown {
	out := make([]Breakdown, len(records))
	for i, r := range records {
		out[i] = e.Explain(r)
	}
	return out
}

func contributions(factors []signal.Factor) ([]FactorContribution, float64) {
	out := make([]FactorContribution, len(factors))
	var sum float64
	for i, f := range factors {
		score, weight := num(f.Score), num(f.Weight)
		c := score * weight
		out[i] = FactorContribution{
			Name:         f.Name,
			Score:        score,
			Weight:       weight,
			Contribution: c,
			Rationale:    f.Rationale,
		}
		sum += c
	}
	return out, sum
}

func single(p signal.LowConfluencePayload) *ConfluenceBreakdown {
	factors, sum := contributions(p.Factors)
	synergy, conflict := num(p.SynergyBonus), num(p.ConflictPenalty)

	reported := num(p.Score)
	threshold := num(p.Threshold)
	return &ConfluenceBreakdown{
		Factors:         factors,
		WeightedSum:     sum,
		SynergyBonus:    synergy,
		ConflictPenalty: conflict,
		Total:           sum + synergy - conflict,
		ReportedScore:   reported,
		Threshold:       threshold,
		Shortfall:       math.Max(0, threshold-reported),
	}
}

func side(d signal.DirectionScore, threshold float64) SideBreakdown {
	factors, sum := contributions(d.Factors)
	synergy, conflict := num(d.SynergyBonus), num(d.ConflictPenalty)
	score := num(d.Score)
	return SideBreakdown{
		Score:           score,
		Factors:         factors,
		WeightedSum:     sum,
		SynergyBonus:    synergy,
		ConflictPenalty: conflict,
		Total:           sum + synergy - conflict,
		ClearsThreshold: score >= threshold,
	}
}

func (e *Explainer) dual(p signal.DualDirectionPayload) *DualBreakdown {
	threshold := num(p.Threshold)
	bull := side(p.Bullish, threshold)
	bear := side(p.Bearish, threshold)
	gap := math.Abs(bull.Score - bear.Score)

	leading := signal.Neutral
	switch {
	case bull.Score > bear.Score:
		leading = signal.Bullish
	case bear.Score > bull.Score:
		leading = signal.Bearish
	}

	return &DualBreakdown{
		Bullish:    bull,
		Bearish:    bear,
		Threshold:  threshold,
		Gap:        gap,
		MinGap:     e.minGap,
		Conflicted: gap <= e.minGap,
		Leading:    leading,
	}
}

func dualSummary(d *DualBreakdown) string {
	if d.Conflicted {
		return fmt.Sprintf("Conflicted market: bullish %.1f vs bearish %.1f, gap %.1f (needs > %.1f)",
			d.Bullish.Score, d.Bearish.Score, d.Gap, d.MinGap)
	}

	scores := fmt.Sprintf("Bullish %.1f vs bearish %.1f, gap %.1f", d.Bullish.Score, d.Bearish.Score, d.Gap)
	switch {
	case d.Bullish.ClearsThreshold && d.Bearish.ClearsThreshold:
		return fmt.Sprintf("%s; both sides cleared %.1f", scores, d.Threshold)
	case d.Bullish.ClearsThreshold:
		return fmt.Sprintf("%s; only bullish cleared %.1f", scores, d.Threshold)
	case d.Bearish.ClearsThreshold:
		return fmt.Sprintf("%s; only bearish cleared %.1f", scores, d.Threshold)
	default:
		return fmt.Sprintf("%s; neither side cleared %.1f", scores, d.Threshold)
	}
}

func timeframes(p signal.MissingTimeframesPayload) *TimeframeBreakdown {
	missing := make(map[string]struct{}, len(p.Missing))
	for _, tf := range p.Missing {
		missing[tf] = struct{}{}
	}

	present := make([]string, 0, len(p.Required))
	for _, tf := range p.Required {
		if _, ok := missing[tf]; !ok {
			present = append(present, tf)
		}
	}

	return &TimeframeBreakdown{
		Missing:  append([]string{}, p.Missing...),
		Required: append([]string{}, p.Required...),
		Present:  present,
	}
}

func generic(rec signal.RejectionRecord) []signal.Field {
	var fields []signal.Field
	if p, ok := rec.Payload.(signal.GenericPayload); ok {
		fields = p.Fields
	} else {
		fields = rec.Extras()
	}

	out := make([]signal.Field, 0, len(fields))
	for _, f := range fields {
		if signal.IsStandardKey(f.Key) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func num(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
