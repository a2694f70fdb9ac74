package quality

import (
	"math"
	"strings"
)

// TierName is a discrete quality bucket
type TierName string

const (
	TierTop   TierName = "TOP"
	TierHigh  TierName = "HIGH"
	TierSolid TierName = "SOLID"
)

// Tiers lists the buckets from best to worst
var Tiers = []TierName{TierTop, TierHigh, TierSolid}

// ParseTier maps a case-insensitive name onto a tier
func ParseTier(s string) (TierName, bool) {
	switch TierName(strings.ToUpper(strings.TrimSpace(s))) {
	case TierTop:
		return TierTop, true
	case TierHigh:
		return TierHigh, true
	case TierSolid:
		return TierSolid, true
	}
	return "", false
}

// Rank orders tiers: SOLID=0, HIGH=1, TOP=2
func (t TierName) Rank() int {
	switch t {
	case TierTop:
		return 2
	case TierHigh:
		return 1
	default:
		return 0
	}
}

// Tier is the classification of a confidence score plus display hints.
// It is a plain value so equal scores produce equal tiers.
type Tier struct {
	Name         TierName `json:"tier"`
	Stars        int      `json:"stars"`
	Label        string   `json:"label"`
	Color        string   `json:"color"`
	BorderClass  string   `json:"border_class"`
	DisplayScore float64  `json:"display_score"`
}

// Rank is shorthand for t.Name.Rank()
func (t Tier) Rank() int { return t.Name.Rank() }

type tierStyle struct {
	stars       int
	label       string
	color       string
	borderClass string
}

var tierStyles = map[TierName]tierStyle{
	TierTop:   {stars: 3, label: "Top Tier", color: "success", borderClass: "border-success"},
	TierHigh:  {stars: 2, label: "High Quality", color: "primary", borderClass: "border-primary"},
	TierSolid: {stars: 1, label: "Solid", color: "muted", borderClass: "border-border"},
}

// Classify buckets a confidence score. It is total: NaN and out-of-range
// scores still classify, only DisplayScore is clamped.
func (e *Engine) Classify(score float64) Tier {
	return tierFor(e.TierOf(score), score)
}

// TierOf returns only the bucket name for score
func (e *Engine) TierOf(score float64) TierName {
	switch {
	case score >= e.cfg.TopMin:
		return TierTop
	case score >= e.cfg.HighMin:
		return TierHigh
	default:
		return TierSolid
	}
}

// Style returns the display hints for a tier name without a score
func Style(name TierName) Tier {
	return tierFor(name, math.NaN())
}

func tierFor(name TierName, score float64) Tier {
	style := tierStyles[name]
	return Tier{
		Name:         name,
		Stars:        style.stars,
		Label:        style.label,
		Color:        style.color,
		BorderClass:  style.borderClass,
		DisplayScore: clampDisplay(score),
	}
}

func clampDisplay(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
