package signal

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnmarshalJSON accepts numbers or numeric strings for every numeric field.
// Values that cannot be read as a finite number fall back to zero, or to
// absent for the optional risk_reward and expected_value.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode signal: %w", err)
	}

	out := Signal{
		ID:              stringFrom(obj["id"]),
		Pair:            stringFrom(obj["pair"]),
		ConfidenceScore: numberFrom(obj["confidence_score"]),
		TrendBias:       Bias(stringFrom(obj["trend_bias"])),
		Classification:  Classification(stringFrom(obj["classification"])),
		StopLoss:        numberFrom(obj["stop_loss"]),
		TakeProfits:     numbersFrom(obj["take_profits"]),
		RiskReward:      optionalNumber(obj["risk_reward"]),
		PlanType:        PlanType(stringFrom(obj["plan_type"])),
		ExpectedValue:   optionalNumber(obj["expected_value"]),
	}
	if raw, ok := obj["entry_zone"]; ok {
		_ = json.Unmarshal(raw, &out.EntryZone)
	}
	if raw, ok := obj["reversal_context"]; ok && !isNull(raw) {
		var rc ReversalContext
		if err := json.Unmarshal(raw, &rc); err == nil {
			out.Reversal = &rc
		}
	}
	if raw, ok := obj["regime"]; ok && !isNull(raw) {
		var rm RegimeMeta
		if err := json.Unmarshal(raw, &rm); err == nil {
			out.Regime = &rm
		}
	}

	*s = out
	return nil
}

// UnmarshalJSON reads the zone bounds leniently
func (z *EntryZone) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode entry zone: %w", err)
	}
	*z = EntryZone{Low: numberFrom(obj["low"]), High: numberFrom(obj["high"])}
	return nil
}

// UnmarshalJSON reads numeric fields leniently; an unparseable timestamp is
// left zero so ingest can stamp it.
func (m *ScanMetadata) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode scan metadata: %w", err)
	}

	out := ScanMetadata{
		ScanID:     stringFrom(obj["scan_id"]),
		Mode:       stringFrom(obj["mode"]),
		MinScore:   numberFrom(obj["min_score"]),
		Timeframes: fieldBag{{Key: "timeframes", Value: obj["timeframes"]}}.strings("timeframes"),
		Leverage:   numberFrom(obj["leverage"]),
	}
	if ts := stringFrom(obj["scanned_at"]); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			out.ScannedAt = t
		}
	}

	*m = out
	return nil
}

// UnmarshalJSON decodes a batch record by record. A signal or rejection that
// is not a JSON object is skipped and counted in Dropped instead of failing
// the whole batch.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Signals    []json.RawMessage `json:"signals"`
		Rejections []json.RawMessage `json:"rejections"`
		Metadata   json.RawMessage   `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	var out Batch
	if raw.Signals != nil {
		out.Signals = make([]Signal, 0, len(raw.Signals))
	}
	for _, item := range raw.Signals {
		var s Signal
		if err := json.Unmarshal(item, &s); err != nil {
			out.Dropped++
			continue
		}
		out.Signals = append(out.Signals, s)
	}
	if raw.Rejections != nil {
		out.Rejections = make([]RejectionRecord, 0, len(raw.Rejections))
	}
	for _, item := range raw.Rejections {
		var r RejectionRecord
		if err := json.Unmarshal(item, &r); err != nil {
			out.Dropped++
			continue
		}
		out.Rejections = append(out.Rejections, r)
	}
	if !isNull(raw.Metadata) {
		if err := json.Unmarshal(raw.Metadata, &out.Metadata); err != nil {
			return err
		}
	}

	*b = out
	return nil
}

func optionalNumber(raw json.RawMessage) *float64 {
	f, ok := parseNumber(raw)
	if !ok {
		return nil
	}
	return &f
}

func numbersFrom(raw json.RawMessage) []float64 {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		if f, ok := parseNumber(item); ok {
			out = append(out, f)
		}
	}
	return out
}
