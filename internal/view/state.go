package view

// State is an operator's saved view: active filters plus sort
type State struct {
	Filters Filters  `json:"filters"`
	Sort    SortSpec `json:"sort"`
}

// DefaultState shows everything by confidence, highest first
func DefaultState() State {
	return State{Filters: DefaultFilters(), Sort: DefaultSort()}
}

// Normalized replaces unknown or empty values with their defaults
func (s State) Normalized() State {
	min := s.Filters.MinConfidence
	if !(min > 0) {
		min = 0
	}
	return State{
		Filters: Filters{
			Tier:          ParseTierFilter(string(s.Filters.Tier)),
			Bias:          ParseBiasFilter(string(s.Filters.Bias)),
			MinConfidence: min,
		},
		Sort: s.Sort.normalized(),
	}
}
