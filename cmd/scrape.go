package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
	"github.com/racealert/race-alert/internal/clock/system"
	"github.com/racealert/race-alert/internal/fetcher"
	"github.com/racealert/race-alert/internal/fetcher/headless"
	"github.com/racealert/race-alert/internal/fetcher/ratelimit"
	"github.com/racealert/race-alert/internal/fetcher/static"
	"github.com/racealert/race-alert/internal/ingest"
	"github.com/racealert/race-alert/internal/scraper"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one scrape pass over the configured races",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd.Context())
		},
	}
}

func runScrape(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	races, err := loadRunRaces(ctx, store)
	if err != nil {
		return err
	}

	// A browser that fails to start is fatal: without it JS-rendered
	// pages cannot be classified at all.
	browser, err := headless.New(headless.Config{
		UserAgent:         cfg.Scraper.UserAgent,
		NavigationTimeout: cfg.PageTimeout(),
		SettleDelay:       cfg.SettleDelay(),
	})
	if err != nil {
		return fmt.Errorf("start headless browser: %w", err)
	}
	defer browser.Close()

	var probe fetcher.PageFetcher
	if cfg.Scraper.StaticProbe {
		probe = static.New(static.Config{
			UserAgent: cfg.Scraper.UserAgent,
			Timeout:   cfg.PageTimeout(),
		})
	}
	client := fetcher.NewClient(probe, browser,
		fetcher.NewDetector(cfg.Scraper.DetectorMinHTMLBytes), cfg.PageTimeout(), logger).
		WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Scraper.HostRPS,
			DefaultBurst: cfg.Scraper.HostBurst,
		}))

	var submitter alert.Submitter
	if cfg.Webhook.URL != "" {
		submitter, err = ingest.New(ingest.Config{
			URL:        cfg.Webhook.URL,
			Secret:     cfg.Webhook.Secret,
			MaxRetries: cfg.Webhook.MaxRetries,
		}, logger)
		if err != nil {
			return fmt.Errorf("build webhook client: %w", err)
		}
	} else {
		logger.Warn("no webhook.url configured, open results will not be submitted")
	}

	o := scraper.New(client, submitter, system.Clock{}, scraper.Config{
		Pacing:        cfg.Pacing(),
		SnippetLength: cfg.Scraper.SnippetLength,
	}, logger)

	summary, err := o.Run(ctx, races)
	if err != nil {
		return fmt.Errorf("scrape run: %w", err)
	}

	logger.Info("scrape run complete",
		zap.Int("total", summary.Total),
		zap.Int("open", summary.Open),
		zap.Int("closed", summary.Closed),
		zap.Int("full", summary.Full),
		zap.Int("unknown", summary.Unknown),
		zap.Int("errors", summary.Errors),
		zap.Int("submitted", summary.Submitted))
	return nil
}

func loadRunRaces(ctx context.Context, store alert.Store) ([]alert.Race, error) {
	var filter *uuid.UUID
	if cfg.Scraper.RaceID != "" {
		id, err := uuid.Parse(cfg.Scraper.RaceID)
		if err != nil {
			return nil, fmt.Errorf("invalid scraper.race_id: %w", err)
		}
		filter = &id
	}
	races, err := scraper.LoadRaces(ctx, store, filter, logger)
	if err != nil {
		return nil, fmt.Errorf("load races: %w", err)
	}
	return races, nil
}
