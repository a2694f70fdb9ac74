package view

import "strings"

// SortField is a sortable column of the result view
type SortField string

const (
	SortConfidence SortField = "confidence"
	SortEV         SortField = "ev"
	SortPair       SortField = "pair"
	SortRiskReward SortField = "riskReward"
)

// Direction is the sort order
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortSpec selects the sort column and order
type SortSpec struct {
	Field     SortField `json:"field"`
	Direction Direction `json:"direction"`
}

// DefaultSort is confidence, highest first
func DefaultSort() SortSpec {
	return SortSpec{Field: SortConfidence, Direction: Desc}
}

// ParseSortField maps user input onto a sort field; unknown values mean confidence
func ParseSortField(s string) SortField {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ev", "expected_value":
		return SortEV
	case "pair", "symbol":
		return SortPair
	case "riskreward", "risk_reward", "rr":
		return SortRiskReward
	}
	return SortConfidence
}

// ParseDirection maps user input onto a direction; unknown values mean desc
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Asc)) {
		return Asc
	}
	return Desc
}

// Toggle returns the spec after the operator clicks field: the same field
// flips direction, a new field starts at desc
func (s SortSpec) Toggle(field SortField) SortSpec {
	s = s.normalized()
	if field == s.Field {
		if s.Direction == Desc {
			return SortSpec{Field: field, Direction: Asc}
		}
		return SortSpec{Field: field, Direction: Desc}
	}
	return SortSpec{Field: ParseSortField(string(field)), Direction: Desc}
}

func (s SortSpec) normalized() SortSpec {
	return SortSpec{
		Field:     ParseSortField(string(s.Field)),
		Direction: ParseDirection(string(s.Direction)),
	}
}
