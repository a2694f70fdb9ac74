package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ReasonType is the closed taxonomy of rejection causes reported upstream
type ReasonType string

const (
	ReasonLowConfluence     ReasonType = "low_confluence"
	ReasonNoData            ReasonType = "no_data"
	ReasonMissingCriticalTF ReasonType = "missing_critical_tf"
	ReasonRiskValidation    ReasonType = "risk_validation"
	ReasonNoTradePlan       ReasonType = "no_trade_plan"
	ReasonCooldownActive    ReasonType = "cooldown_active"
	ReasonErrors            ReasonType = "errors"
)

// KnownReasons lists the taxonomy in display order
var KnownReasons = []ReasonType{
	ReasonLowConfluence,
	ReasonNoData,
	ReasonMissingCriticalTF,
	ReasonRiskValidation,
	ReasonNoTradePlan,
	ReasonCooldownActive,
	ReasonErrors,
}

// Known reports whether r belongs to the taxonomy
func (r ReasonType) Known() bool {
	for _, k := range KnownReasons {
		if r == k {
			return true
		}
	}
	return false
}

// Standard record keys. Everything else on the wire is reason-specific.
const (
	keySymbol     = "symbol"
	keyReasonType = "reason_type"
	keyReason     = "reason"
	keyTraceID    = "trace_id"
)

// IsStandardKey reports whether key is one of the four fields every record carries
func IsStandardKey(key string) bool {
	switch key {
	case keySymbol, keyReasonType, keyReason, keyTraceID:
		return true
	}
	return false
}

// Field is one reason-specific key/value pair kept in wire order
type Field struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// PayloadKind names the variant carried by a rejection
type PayloadKind string

const (
	KindLowConfluence PayloadKind = "low_confluence"
	KindDualDirection PayloadKind = "dual_direction"
	KindTimeframes    PayloadKind = "missing_timeframes"
	KindGeneric       PayloadKind = "generic"
)

// Payload is the reason-specific part of a rejection record
type Payload interface {
	Kind() PayloadKind
	fields() []Field
}

// Factor is one weighted input to a confluence score
type Factor struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Rationale string  `json:"rationale,omitempty"`
}

// LowConfluencePayload is a single-direction score that missed the threshold
type LowConfluencePayload struct {
	Score           float64
	Threshold       float64
	Factors         []Factor
	SynergyBonus    float64
	ConflictPenalty float64
}

func (LowConfluencePayload) Kind() PayloadKind { return KindLowConfluence }

func (p LowConfluencePayload) fields() []Field {
	return []Field{
		rawField("score", p.Score),
		rawField("threshold", p.Threshold),
		rawField("all_factors", nonNilFactors(p.Factors)),
		rawField("synergy_bonus", p.SynergyBonus),
		rawField("conflict_penalty", p.ConflictPenalty),
	}
}

// DirectionScore is one side of a dual-direction evaluation
type DirectionScore struct {
	Score           float64
	Factors         []Factor
	SynergyBonus    float64
	ConflictPenalty float64
}

// DualDirectionPayload carries both sides when bullish and bearish readings
// were too close to pick one
type DualDirectionPayload struct {
	Threshold float64
	Bullish   DirectionScore
	Bearish   DirectionScore
}

func (DualDirectionPayload) Kind() PayloadKind { return KindDualDirection }

func (p DualDirectionPayload) fields() []Field {
	return []Field{
		rawField("threshold", p.Threshold),
		rawField("bullish_score", p.Bullish.Score),
		rawField("bearish_score", p.Bearish.Score),
		rawField("bullish_factors", nonNilFactors(p.Bullish.Factors)),
		rawField("bearish_factors", nonNilFactors(p.Bearish.Factors)),
		rawField("bullish_synergy", p.Bullish.SynergyBonus),
		rawField("bearish_synergy", p.Bearish.SynergyBonus),
		rawField("bullish_conflict", p.Bullish.ConflictPenalty),
		rawField("bearish_conflict", p.Bearish.ConflictPenalty),
	}
}

// MissingTimeframesPayload lists the timeframes a scan required but could not load
type MissingTimeframesPayload struct {
	Missing  []string
	Required []string
}

func (MissingTimeframesPayload) Kind() PayloadKind { return KindTimeframes }

func (p MissingTimeframesPayload) fields() []Field {
	return []Field{
		rawField("missing_timeframes", nonNilStrings(p.Missing)),
		rawField("required_timeframes", nonNilStrings(p.Required)),
	}
}

// GenericPayload holds whatever extra fields a record carried. It is also the
// variant used for reason types outside the taxonomy.
type GenericPayload struct {
	Fields []Field
}

func (GenericPayload) Kind() PayloadKind { return KindGeneric }

func (p GenericPayload) fields() []Field { return p.Fields }

// RejectionRecord is a candidate that did not become a signal
type RejectionRecord struct {
	Symbol     string
	ReasonType ReasonType
	Reason     string
	TraceID    string
	Payload    Payload

	// extras holds every non-standard field in wire order so a record
	// re-encodes without loss
	extras []Field
}

// NewRejection builds a record from a typed payload
func NewRejection(symbol string, reasonType ReasonType, reason, traceID string, payload Payload) RejectionRecord {
	if payload == nil {
		payload = GenericPayload{}
	}
	return RejectionRecord{
		Symbol:     symbol,
		ReasonType: reasonType,
		Reason:     reason,
		TraceID:    traceID,
		Payload:    payload,
		extras:     payload.fields(),
	}
}

// Extras returns the non-standard fields in wire order
func (r RejectionRecord) Extras() []Field {
	out := make([]Field, len(r.extras))
	copy(out, r.extras)
	return out
}

// MarshalJSON writes the standard fields followed by the extras in their original order
func (r RejectionRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(key string, value []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	for _, f := range []struct{ key, val string }{
		{keySymbol, r.Symbol},
		{keyReasonType, string(r.ReasonType)},
		{keyReason, r.Reason},
	} {
		v, err := json.Marshal(f.val)
		if err != nil {
			return nil, err
		}
		write(f.key, v)
	}
	if r.TraceID != "" {
		v, _ := json.Marshal(r.TraceID)
		write(keyTraceID, v)
	}

	extras := r.extras
	if extras == nil && r.Payload != nil {
		extras = r.Payload.fields()
	}
	for _, f := range extras {
		if IsStandardKey(f.Key) {
			continue
		}
		value := []byte(f.Value)
		if len(bytes.TrimSpace(value)) == 0 {
			value = []byte("null")
		}
		write(f.Key, value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a record and selects its payload variant from reason_type
func (r *RejectionRecord) UnmarshalJSON(data []byte) error {
	fields, err := decodeOrderedObject(data)
	if err != nil {
		return fmt.Errorf("decode rejection record: %w", err)
	}

	var rec RejectionRecord
	for _, f := range fields {
		switch f.Key {
		case keySymbol:
			rec.Symbol = stringFrom(f.Value)
		case keyReasonType:
			rec.ReasonType = ReasonType(stringFrom(f.Value))
		case keyReason:
			rec.Reason = stringFrom(f.Value)
		case keyTraceID:
			rec.TraceID = stringFrom(f.Value)
		default:
			rec.extras = append(rec.extras, f)
		}
	}
	rec.Payload = payloadFor(rec.ReasonType, rec.extras)

	*r = rec
	return nil
}

func payloadFor(reason ReasonType, extras []Field) Payload {
	bag := fieldBag(extras)

	switch reason {
	case ReasonLowConfluence:
		if bag.has("bullish_factors") && bag.has("bearish_factors") {
			return DualDirectionPayload{
				Threshold: bag.number("threshold"),
				Bullish: DirectionScore{
					Score:           bag.number("bullish_score"),
					Factors:         bag.factors("bullish_factors"),
					SynergyBonus:    bag.number("bullish_synergy"),
					ConflictPenalty: bag.number("bullish_conflict"),
				},
				Bearish: DirectionScore{
					Score:           bag.number("bearish_score"),
					Factors:         bag.factors("bearish_factors"),
					SynergyBonus:    bag.number("bearish_synergy"),
					ConflictPenalty: bag.number("bearish_conflict"),
				},
			}
		}
		factors := bag.factors("all_factors")
		if factors == nil {
			factors = bag.factors("factors")
		}
		return LowConfluencePayload{
			Score:           bag.number("score"),
			Threshold:       bag.number("threshold"),
			Factors:         factors,
			SynergyBonus:    bag.number("synergy_bonus"),
			ConflictPenalty: bag.number("conflict_penalty"),
		}
	case ReasonMissingCriticalTF:
		return MissingTimeframesPayload{
			Missing:  bag.strings("missing_timeframes"),
			Required: bag.strings("required_timeframes"),
		}
	default:
		out := make([]Field, len(extras))
		copy(out, extras)
		return GenericPayload{Fields: out}
	}
}

// fieldBag looks up extras by key; the last occurrence wins like encoding/json
type fieldBag []Field

func (b fieldBag) get(key string) (json.RawMessage, bool) {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i].Key == key {
			return b[i].Value, true
		}
	}
	return nil, false
}

func (b fieldBag) has(key string) bool {
	v, ok := b.get(key)
	return ok && !isNull(v)
}

func (b fieldBag) number(key string) float64 {
	v, _ := b.get(key)
	return numberFrom(v)
}

func (b fieldBag) strings(key string) []string {
	v, ok := b.get(key)
	if !ok || isNull(v) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := stringFrom(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (b fieldBag) factors(key string) []Factor {
	v, ok := b.get(key)
	if !ok || isNull(v) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil
	}
	out := make([]Factor, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		out = append(out, Factor{
			Name:      stringFrom(obj["name"]),
			Score:     numberFrom(obj["score"]),
			Weight:    numberFrom(obj["weight"]),
			Rationale: stringFrom(obj["rationale"]),
		})
	}
	return out
}

func decodeOrderedObject(data []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var fields []Field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

// numberFrom decodes a JSON number or numeric string; anything else is 0
func numberFrom(raw json.RawMessage) float64 {
	f, _ := parseNumber(raw)
	return f
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && isFinite(f) {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && isFinite(f) {
			return f, true
		}
	}
	return 0, false
}

func stringFrom(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func rawField(key string, v interface{}) Field {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("null")
	}
	return Field{Key: key, Value: b}
}

func nonNilFactors(f []Factor) []Factor {
	if f == nil {
		return []Factor{}
	}
	return f
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
