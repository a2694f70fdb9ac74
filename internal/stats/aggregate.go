package stats

import (
	"math"
	"time"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
)

// GradeNone frames a scan that produced no accepted signals
const GradeNone = "NONE"

// ScanStatistics summarises one scan batch. Every numeric field is finite;
// empty inputs yield zeros.
type ScanStatistics struct {
	ScanID     string    `json:"scan_id,omitempty"`
	Mode       string    `json:"mode"`
	MinScore   float64   `json:"min_score"`
	Timeframes []string  `json:"timeframes"`
	Leverage   float64   `json:"leverage"`
	ScannedAt  time.Time `json:"scanned_at"`

	TotalSignals  int     `json:"total_signals"`
	Scanned       int     `json:"scanned"`
	PassRate      float64 `json:"pass_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgEV         float64 `json:"avg_ev"`
	LongCount     int     `json:"long_count"`
	ShortCount    int     `json:"short_count"`
	NeutralCount  int     `json:"neutral_count"`
	BiasRatio     float64 `json:"bias_ratio"` // % of directional signals that are long

	TierCounts      map[quality.TierName]int  `json:"tier_counts"`
	RejectedCount   int                       `json:"rejected_count"`
	RejectionCounts map[signal.ReasonType]int `json:"rejection_counts"`
	QualityGrade    string                    `json:"quality_grade"`
}

// Aggregator reduces a batch into ScanStatistics
type Aggregator struct {
	engine *quality.Engine
}

// NewAggregator creates an aggregator that classifies and resolves EV with engine
func NewAggregator(engine *quality.Engine) *Aggregator {
	if engine == nil {
		engine = quality.NewDefaultEngine()
	}
	return &Aggregator{engine: engine}
}

// Aggregate computes statistics for signals and rejections. It never panics on
// empty input or malformed optional fields.
func (a *Aggregator) Aggregate(signals []signal.Signal, rejections []signal.RejectionRecord, meta signal.ScanMetadata) ScanStatistics {
	st := ScanStatistics{
		ScanID:          meta.ScanID,
		Mode:            meta.Mode,
		MinScore:        orZero(meta.MinScore),
		Timeframes:      append([]string{}, meta.Timeframes...),
		Leverage:        orZero(meta.Leverage),
		ScannedAt:       meta.ScannedAt,
		TotalSignals:    len(signals),
		Scanned:         len(signals) + len(rejections),
		RejectedCount:   len(rejections),
		TierCounts:      make(map[quality.TierName]int, len(quality.Tiers)),
		RejectionCounts: make(map[signal.ReasonType]int),
	}
	for _, t := range quality.Tiers {
		st.TierCounts[t] = 0
	}

	if st.Scanned > 0 {
		st.PassRate = float64(len(signals)) / float64(st.Scanned) * 100
	}

	var confSum, evSum float64
	for _, s := range signals {
		confSum += orZero(s.ConfidenceScore)
		evSum += orZero(a.engine.ResolveEV(s))
		st.TierCounts[a.engine.TierOf(s.ConfidenceScore)]++

		switch s.TrendBias {
		case signal.Bullish:
			st.LongCount++
		case signal.Bearish:
			st.ShortCount++
		default:
			st.NeutralCount++
		}
	}

	if n := len(signals); n > 0 {
		st.AvgConfidence = confSum / float64(n)
		st.AvgEV = evSum / float64(n)
		st.QualityGrade = string(a.engine.TierOf(st.AvgConfidence))
	} else {
		st.QualityGrade = GradeNone
	}

	if directional := st.LongCount + st.ShortCount; directional > 0 {
		st.BiasRatio = float64(st.LongCount) / float64(directional) * 100
	}

	for _, r := range rejections {
		reason := r.ReasonType
		if !reason.Known() {
			reason = signal.ReasonErrors
		}
		st.RejectionCounts[reason]++
	}

	return st
}

// Aggregate is a convenience wrapper using the default engine
func Aggregate(signals []signal.Signal, rejections []signal.RejectionRecord, meta signal.ScanMetadata) ScanStatistics {
	return NewAggregator(nil).Aggregate(signals, rejections, meta)
}

func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
