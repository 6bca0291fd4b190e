// Package scraper runs the polling side of the pipeline: it walks the race
// list sequentially, fetches each registration page, classifies the visible
// text and submits open observations to the ingestion endpoint.
package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/racealert/race-alert/internal/alert"
	"github.com/racealert/race-alert/internal/classifier"
	"github.com/racealert/race-alert/internal/metrics"
)

// Config tunes one scrape run.
type Config struct {
	// Pacing is the ctx-aware delay between consecutive races.
	Pacing time.Duration
	// SnippetLength caps the content snippet attached to open results.
	SnippetLength int
}

// Summary aggregates the outcome of one run.
type Summary struct {
	Total     int
	Open      int
	Closed    int
	Full      int
	Unknown   int
	Errors    int
	Submitted int
}

// Orchestrator drives scrape runs. Races are processed one at a time; a
// failure on one race never aborts the rest of the run.
type Orchestrator struct {
	fetcher   alert.Fetcher
	submitter alert.Submitter
	clock     alert.Clock
	cfg       Config
	logger    *zap.Logger
}

// New builds an Orchestrator. submitter may be nil, in which case open
// observations are logged but not forwarded.
func New(
	fetcher alert.Fetcher,
	submitter alert.Submitter,
	clock alert.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = 500
	}
	return &Orchestrator{
		fetcher:   fetcher,
		submitter: submitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run scrapes every race in order and returns the run summary. The context
// cancels the run between races and aborts in-flight fetches.
func (o *Orchestrator) Run(ctx context.Context, races []alert.Race) (Summary, error) {
	summary := Summary{Total: len(races)}

	for i, race := range races {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := o.scrapeOne(ctx, race)
		switch result.Status {
		case alert.StatusOpen:
			summary.Open++
		case alert.StatusClosed:
			summary.Closed++
		case alert.StatusFull:
			summary.Full++
		default:
			summary.Unknown++
		}
		if result.Error != "" {
			summary.Errors++
		}

		if result.Status == alert.StatusOpen && o.submitter != nil {
			if err := o.submitter.Submit(ctx, result); err != nil {
				o.logger.Warn("submit failed",
					zap.String("race", race.Name),
					zap.Error(err))
			} else {
				summary.Submitted++
			}
		}

		if i < len(races)-1 && o.cfg.Pacing > 0 {
			if err := sleepCtx(ctx, o.cfg.Pacing); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func (o *Orchestrator) scrapeOne(ctx context.Context, race alert.Race) alert.ScrapeResult {
	start := time.Now()
	result := alert.ScrapeResult{
		RaceID:    race.ID,
		Status:    alert.StatusUnknown,
		ScrapedAt: o.clock.Now(),
	}

	text, err := o.fetcher.FetchText(ctx, race.URL)
	if err != nil {
		result.Error = err.Error()
		o.logger.Warn("scrape failed",
			zap.String("race", race.Name),
			zap.String("url", race.URL),
			zap.Error(err))
		metrics.ObserveScrape(string(result.Status), time.Since(start))
		return result
	}

	result.Status = classifier.Classify(text, race.OpenKeywords, race.ClosedKeywords)
	result.ContentSnippet = truncate(text, o.cfg.SnippetLength)

	o.logger.Info("scraped race",
		zap.String("race", race.Name),
		zap.String("status", string(result.Status)),
		zap.Duration("took", time.Since(start)))
	metrics.ObserveScrape(string(result.Status), time.Since(start))
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
