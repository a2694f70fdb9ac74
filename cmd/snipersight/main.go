package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/config"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/logging"
)

const (
	appName = "SniperSight"
	version = "v1.4.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg(appName + " failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "snipersight",
		Short:   "Signal quality classification and scan analytics",
		Version: version,
		Long: `SniperSight grades scanner signals into quality tiers, resolves their
expected value, summarises scans and explains every rejected symbol.

Run 'snipersight serve' for the HTTP API and live stream, or use the
offline commands against a saved scan batch.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logging.Setup(cfg.Log)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", config.DefaultPath, "Path to YAML config")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (trace|debug|info|warn|error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and websocket stream",
		Long:  "Serves scan analytics over HTTP, polls the upstream pipeline when configured and hot-reloads the config file",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().String("host", "", "HTTP host (overrides config)")
	serveCmd.Flags().Duration("poll", 0, "Upstream poll interval (overrides config, 0 keeps config)")
	serveCmd.Flags().Bool("watch", true, "Reload engine thresholds when the config file changes")

	analyzeCmd := &cobra.Command{
		Use:   "analyze <batch.json>",
		Short: "Print scan statistics for a saved batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().String("format", "text", "Output format (text|json)")
	addViewFlags(analyzeCmd)

	explainCmd := &cobra.Command{
		Use:   "explain <batch.json>",
		Short: "Explain rejected symbols in a saved batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	}
	explainCmd.Flags().String("symbol", "", "Only explain this symbol")
	explainCmd.Flags().String("format", "text", "Output format (text|json)")

	exportCmd := &cobra.Command{
		Use:   "export <batch.json>",
		Short: "Export signals or rejections from a saved batch as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().String("kind", "signals", "What to export (signals|rejections)")
	exportCmd.Flags().String("out", "-", "Output file, - for stdout")
	addViewFlags(exportCmd)

	rootCmd.AddCommand(serveCmd, analyzeCmd, explainCmd, exportCmd)
	return rootCmd
}

func addViewFlags(cmd *cobra.Command) {
	cmd.Flags().String("tier", "all", "Tier filter (all|top|high|solid)")
	cmd.Flags().String("bias", "all", "Bias filter (all|bullish|bearish)")
	cmd.Flags().Float64("min-confidence", 0, "Minimum confidence score")
	cmd.Flags().String("sort", "confidence", "Sort field (confidence|ev|pair|riskReward)")
	cmd.Flags().String("dir", "desc", "Sort direction (asc|desc)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}
