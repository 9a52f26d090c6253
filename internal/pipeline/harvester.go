package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/bookkeeper"
	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/reaper"
	"github.com/JakeFAU/tdsharvest/internal/thredds"
)

// Reaper mirrors resources below a target root.
type Reaper interface {
	Reap(ctx context.Context, targetRoot string, resources []harvest.Resource) (reaper.Report, error)
}

// HarvesterConfig holds the values a harvest run needs.
type HarvesterConfig struct {
	CatalogURL   string
	TargetRoot   string
	ServiceLabel string
}

// HarvestOptions vary a single run.
type HarvestOptions struct {
	// Retry reaps only the previous run's retry list instead of crawling.
	Retry bool
}

// HarvestSummary reports what a harvest run did.
type HarvestSummary struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Datasets    int
	Resources   int
	Successes   int
	Errors      int
	Unpersisted int
}

// Harvester runs crawl, filter, reap and bookkeeping.
type Harvester struct {
	crawler harvest.Crawler
	reaper  Reaper
	books   *bookkeeper.Bookkeeper
	cfg     HarvesterConfig
	env     runEnv
	logger  *zap.Logger
}

// NewHarvester wires a Harvester.
func NewHarvester(
	cfg HarvesterConfig,
	crawler harvest.Crawler,
	r Reaper,
	books *bookkeeper.Bookkeeper,
	logger *zap.Logger,
	opts ...Option,
) (*Harvester, error) {
	if crawler == nil || r == nil || books == nil {
		return nil, fmt.Errorf("harvester dependencies are required")
	}
	if cfg.ServiceLabel == "" {
		cfg.ServiceLabel = thredds.DefaultServiceLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		crawler: crawler,
		reaper:  r,
		books:   books,
		cfg:     cfg,
		env:     newRunEnv(opts),
		logger:  logger,
	}, nil
}

// Run performs one harvest. Crawl and target root failures are fatal and
// leave the tracking files reset; everything else is recorded per resource.
func (h *Harvester) Run(ctx context.Context, opts HarvestOptions) (summary HarvestSummary, err error) {
	summary.RunID, summary.StartedAt = h.env.start()
	defer func() { summary.Duration = h.env.clock.Now().Sub(summary.StartedAt) }()
	logger := h.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("harvest run starting",
		zap.String("catalog_url", h.cfg.CatalogURL),
		zap.String("target_root", h.cfg.TargetRoot),
		zap.Bool("retry", opts.Retry),
	)

	var retry []harvest.Resource
	if opts.Retry {
		retry = h.loadRetry(logger)
	}

	h.books.Reset()

	var resources []harvest.Resource
	if opts.Retry {
		resources = retry
	} else {
		datasets, err := h.crawler.Crawl(ctx, h.cfg.CatalogURL)
		if err != nil {
			return summary, err
		}
		summary.Datasets = len(datasets)
		resources = thredds.Resources(datasets, h.cfg.ServiceLabel)
	}
	summary.Resources = len(resources)
	h.books.WriteCrawlResults(resources)

	report, err := h.reaper.Reap(ctx, h.cfg.TargetRoot, resources)
	if err != nil {
		return summary, err
	}
	successes, failures := report.Successes(), report.Errors()
	h.books.WriteRetry(failures)
	h.books.WriteSuccess(successes)

	summary.Successes = len(successes)
	summary.Errors = len(failures)
	summary.Unpersisted = len(report.Unpersisted())
	logger.Info("harvest run complete",
		zap.Int("datasets", summary.Datasets),
		zap.Int("resources", summary.Resources),
		zap.Int("successes", summary.Successes),
		zap.Int("errors", summary.Errors),
		zap.Int("unpersisted", summary.Unpersisted),
	)
	return summary, nil
}

func (h *Harvester) loadRetry(logger *zap.Logger) []harvest.Resource {
	urls, err := h.books.ReadRetry()
	if err != nil {
		logger.Warn("reading retry file failed", zap.Error(err))
		return nil
	}
	known, err := h.books.ReadCrawlResults()
	if err != nil {
		logger.Warn("reading crawl results failed", zap.Error(err))
	}
	resources := bookkeeper.ResourcesFor(urls, known)
	logger.Info("retry resources loaded", zap.Int("resources", len(resources)))
	return resources
}
