package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/explain"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/export"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stats"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/view"
)

func readBatch(path string) (signal.Batch, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return signal.Batch{}, err
		}
		defer f.Close()
		r = f
	}

	var batch signal.Batch
	if err := json.NewDecoder(r).Decode(&batch); err != nil {
		return signal.Batch{}, fmt.Errorf("decode batch %s: %w", path, err)
	}
	return batch, nil
}

func engineFor(cmd *cobra.Command) (*quality.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return quality.NewEngine(cfg.Engine), nil
}

func viewState(cmd *cobra.Command) view.State {
	tier, _ := cmd.Flags().GetString("tier")
	bias, _ := cmd.Flags().GetString("bias")
	minConf, _ := cmd.Flags().GetFloat64("min-confidence")
	field, _ := cmd.Flags().GetString("sort")
	dir, _ := cmd.Flags().GetString("dir")

	return view.State{
		Filters: view.Filters{
			Tier:          view.ParseTierFilter(tier),
			Bias:          view.ParseBiasFilter(bias),
			MinConfidence: minConf,
		},
		Sort: view.SortSpec{Field: view.ParseSortField(field), Direction: view.ParseDirection(dir)},
	}.Normalized()
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	engine, err := engineFor(cmd)
	if err != nil {
		return err
	}
	batch, err := readBatch(args[0])
	if err != nil {
		return err
	}

	st := stats.NewAggregator(engine).Aggregate(batch.Signals, batch.Rejections, batch.Metadata)
	state := viewState(cmd)
	rows := view.NewPipeline(engine).ApplyAnnotated(batch.Signals, state.Filters, state.Sort)

	out := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return export.JSON(out, struct {
			Stats   stats.ScanStatistics `json:"stats"`
			Signals []quality.Annotated  `json:"signals"`
		}{st, rows})
	}

	printStats(out, st)
	fmt.Fprintln(out)
	for _, r := range rows {
		fmt.Fprintf(out, "%-12s %-5s %s %6.1f  %-8s EV %+.2fR\n",
			r.Pair, r.Tier.Name, strings.Repeat("★", r.Tier.Stars), r.ConfidenceScore, r.TrendBias, r.EV)
	}
	return nil
}

func printStats(w io.Writer, st stats.ScanStatistics) {
	fmt.Fprintf(w, "Scan %s  mode=%s  min_score=%.0f  leverage=%.0fx\n", st.ScanID, st.Mode, st.MinScore, st.Leverage)
	fmt.Fprintf(w, "Signals %d of %d scanned (pass rate %.1f%%), rejected %d\n",
		st.TotalSignals, st.Scanned, st.PassRate, st.RejectedCount)
	fmt.Fprintf(w, "Avg confidence %.1f  avg EV %+.2fR  grade %s\n", st.AvgConfidence, st.AvgEV, st.QualityGrade)
	fmt.Fprintf(w, "Bias: %d long / %d short / %d neutral (%.0f%% long)\n",
		st.LongCount, st.ShortCount, st.NeutralCount, st.BiasRatio)
	for _, t := range quality.Tiers {
		fmt.Fprintf(w, "  %-5s %d\n", t, st.TierCounts[t])
	}
	for _, reason := range signal.KnownReasons {
		if n := st.RejectionCounts[reason]; n > 0 {
			fmt.Fprintf(w, "  rejected %-20s %d\n", reason, n)
		}
	}
}

func runExplain(cmd *cobra.Command, args []string) error {
	engine, err := engineFor(cmd)
	if err != nil {
		return err
	}
	batch, err := readBatch(args[0])
	if err != nil {
		return err
	}

	symbol, _ := cmd.Flags().GetString("symbol")
	records := batch.Rejections
	if symbol != "" {
		records = nil
		for _, rec := range batch.Rejections {
			if rec.Symbol == symbol {
				records = append(records, rec)
			}
		}
		if len(records) == 0 {
			return fmt.Errorf("%s was not rejected in this batch", symbol)
		}
	}

	breakdowns := explain.NewExplainer(engine).ExplainAll(records)
	out := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return export.JSON(out, breakdowns)
	}

	for _, b := range breakdowns {
		fmt.Fprintf(out, "[%s] %s %s: %s\n", strings.ToUpper(string(b.Severity)), b.Symbol, b.ReasonType, b.Summary)
		switch {
		case b.Confluence != nil:
			for _, f := range b.Confluence.Factors {
				fmt.Fprintf(out, "    %-24s %6.1f x %.2f = %6.2f\n", f.Name, f.Score, f.Weight, f.Contribution)
			}
		case b.Dual != nil:
			fmt.Fprintf(out, "    leading %s, gap %.1f (min %.1f)\n", b.Dual.Leading, b.Dual.Gap, b.Dual.MinGap)
		case b.Timeframes != nil:
			fmt.Fprintf(out, "    present: %s\n", strings.Join(b.Timeframes.Present, ", "))
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	engine, err := engineFor(cmd)
	if err != nil {
		return err
	}
	batch, err := readBatch(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("out"); path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch kind, _ := cmd.Flags().GetString("kind"); kind {
	case "signals":
		state := viewState(cmd)
		return export.SignalsCSV(out, view.NewPipeline(engine).ApplyAnnotated(batch.Signals, state.Filters, state.Sort))
	case "rejections":
		return export.RejectionsCSV(out, explain.NewExplainer(engine).ExplainAll(batch.Rejections))
	default:
		return fmt.Errorf("unknown export kind %q", kind)
	}
}
