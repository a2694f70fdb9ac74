package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/config"
	httpapi "github.com/NobleWolf412/snipersight-trading-sub002/internal/interfaces/http"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/interfaces/http/handlers"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/metrics"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/quality"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/scan"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/store"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/stream"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/upstream"
)

// runServe starts the API server, the optional upstream poller and the
// config watcher, and blocks until SIGINT or SIGTERM
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.HTTP.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.HTTP.Host = host
	}
	if poll, _ := cmd.Flags().GetDuration("poll"); poll > 0 {
		cfg.Upstream.PollInterval = poll
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := metrics.NewRegistry()
	hub := stream.NewHub(func(n int) { reg.WSClients.Set(float64(n)) })
	defer hub.Close()

	client := upstream.NewClient(cfg.Upstream, nil)
	opts := scan.Options{
		Engine:    quality.NewEngine(cfg.Engine),
		Repo:      store.NewRepo(st, cfg.Store.Prefix, cfg.Scan.SnapshotTTL),
		Metrics:   reg,
		Publisher: hub,
		Params: upstream.Params{
			Mode:       cfg.Scan.Mode,
			MinScore:   cfg.Scan.MinScore,
			Leverage:   cfg.Scan.Leverage,
			Timeframes: cfg.Scan.Timeframes,
			Symbols:    cfg.Scan.Symbols,
		},
	}
	if cfg.Upstream.BaseURL != "" {
		opts.Fetcher = client
	}
	svc := scan.NewService(opts)

	log.Info().
		Str("store", cfg.Store.Backend).
		Str("upstream", cfg.Upstream.BaseURL).
		Str("engine", cfg.Engine.Describe()).
		Msg(appName + " starting")

	if opts.Fetcher != nil && cfg.Upstream.PollInterval > 0 {
		go svc.Poll(ctx, cfg.Upstream.PollInterval)
	}

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		path, _ := cmd.Flags().GetString("config")
		if _, err := os.Stat(path); err == nil {
			go func() {
				err := config.Watch(ctx, path, func(next *config.Config) {
					if err := svc.Reconfigure(next.Engine); err != nil {
						log.Error().Err(err).Msg("Ignoring reloaded engine config")
					}
				})
				if err != nil {
					log.Error().Err(err).Msg("Config watcher stopped")
				}
			}()
		}
	}

	server := httpapi.NewServer(cfg.HTTP, handlers.Deps{
		Service:  svc,
		Metrics:  reg,
		Hub:      hub,
		Upstream: client,
		Version:  version,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
