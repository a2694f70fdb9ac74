package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/explain"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
)

// SignalHeader is the column order of the signal CSV
var SignalHeader = []string{
	"id", "pair", "tier", "stars", "confidence", "trend_bias", "plan_type",
	"entry_low", "entry_high", "stop_loss", "take_profits", "risk_reward", "expected_value",
}

// SignalsCSV writes annotated signals in view order. Missing risk:reward is
// left blank rather than substituted.
func SignalsCSV(w io.Writer, rows []quality.Annotated) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SignalHeader); err != nil {
		return err
	}

	for _, r := range rows {
		tps := make([]string, len(r.TakeProfits))
		for i, tp := range r.TakeProfits {
			tps[i] = num(tp)
		}
		rr := ""
		if r.RiskReward != nil {
			rr = num(*r.RiskReward)
		}

		record := []string{
			r.ID,
			r.Pair,
			string(r.Tier.Name),
			strconv.Itoa(r.Tier.Stars),
			num(r.ConfidenceScore),
			string(r.TrendBias),
			string(r.PlanType),
			num(r.EntryZone.Low),
			num(r.EntryZone.High),
			num(r.StopLoss),
			strings.Join(tps, ";"),
			rr,
			strconv.FormatFloat(r.EV, 'f', 4, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", r.Pair, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// RejectionHeader is the column order of the rejection CSV
var RejectionHeader = []string{"symbol", "reason_type", "severity", "kind", "summary", "trace_id"}

// RejectionsCSV writes one row per breakdown
func RejectionsCSV(w io.Writer, breakdowns []explain.Breakdown) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RejectionHeader); err != nil {
		return err
	}
	for _, b := range breakdowns {
		record := []string{b.Symbol, string(b.ReasonType), string(b.Severity), string(b.Kind), b.Summary, b.TraceID}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write %s: %w", b.Symbol, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSON writes v indented, for CLI output and downloads
func JSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
