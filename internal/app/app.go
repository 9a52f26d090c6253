// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/bookkeeper"
	"github.com/JakeFAU/tdsharvest/internal/catalog"
	"github.com/JakeFAU/tdsharvest/internal/config"
	collyfetcher "github.com/JakeFAU/tdsharvest/internal/fetcher/colly"
	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/logging"
	"github.com/JakeFAU/tdsharvest/internal/metrics"
	"github.com/JakeFAU/tdsharvest/internal/ncml"
	"github.com/JakeFAU/tdsharvest/internal/pipeline"
	"github.com/JakeFAU/tdsharvest/internal/policy/ratelimit"
	"github.com/JakeFAU/tdsharvest/internal/reaper"
	"github.com/JakeFAU/tdsharvest/internal/storage/memory"
	"github.com/JakeFAU/tdsharvest/internal/storage/postgres"
	"github.com/JakeFAU/tdsharvest/internal/storage/sqlite"
	"github.com/JakeFAU/tdsharvest/internal/thredds"
)

// App holds the shared services for one command invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	fetcher harvest.Fetcher
	stop    context.CancelFunc
}

// Option customizes NewApp.
type Option func(*App)

// WithLogger replaces the configured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithFetcher replaces the colly fetcher, mainly for tests.
func WithFetcher(f harvest.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// NewApp builds the logger, fetcher and status server from cfg.
func NewApp(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		var outputs []string
		if cfg.Harvest.LogPath != "" {
			outputs = append(outputs, cfg.Harvest.LogPath)
		}
		logger, err := logging.New(logging.Config{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
			OutputPaths: outputs,
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		a.logger = logger
	}

	if a.fetcher == nil {
		limiter := ratelimit.New(ratelimit.Config{Delay: cfg.Delay()})
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			RespectRobots: cfg.HTTP.RespectRobots,
			Timeout:       cfg.Timeout(),
			MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
			Retries:       cfg.HTTP.Retries,
			RetryBackoff:  cfg.RetryBackoff(),
		}, limiter, a.logger.Named("fetcher"))
	}

	metrics.Init()
	serveCtx, stop := context.WithCancel(ctx)
	a.stop = stop
	metrics.Serve(serveCtx, cfg.Metrics.Addr, a.logger.Named("status"))

	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Fetcher returns the shared fetcher.
func (a *App) Fetcher() harvest.Fetcher {
	return a.fetcher
}

// OpenIndexStore opens the configured index backend.
func (a *App) OpenIndexStore(ctx context.Context, schema *harvest.Schema) (harvest.IndexStore, error) {
	ic := a.cfg.Index
	switch ic.Store {
	case config.StoreSQLite, "":
		a.logger.Info("using sqlite index store", zap.String("path", ic.DBPath), zap.Bool("reset", ic.Reset))
		return sqlite.Open(ctx, sqlite.Config{Path: ic.DBPath, Table: ic.Table, Reset: ic.Reset}, schema)
	case config.StorePostgres:
		a.logger.Info("using postgres index store", zap.String("table", ic.Table), zap.Bool("reset", ic.Reset))
		return postgres.NewIndexStore(ctx, postgres.Config{
			DSN:      a.cfg.DB.DSN,
			Table:    ic.Table,
			Reset:    ic.Reset,
			MaxConns: a.cfg.DB.MaxConns,
		}, schema)
	case config.StoreMemory:
		a.logger.Info("using in-memory index store; rows are discarded on exit")
		return memory.NewIndexStore(), nil
	default:
		return nil, fmt.Errorf("unknown index store: %s", ic.Store)
	}
}

// Indexer wires the index pipeline over store.
func (a *App) Indexer(schema *harvest.Schema, store harvest.IndexStore) (*pipeline.Indexer, error) {
	ic := a.cfg.Index
	policy, err := harvest.ParseLandingPolicy(ic.LandingFailurePolicy)
	if err != nil {
		return nil, err
	}
	logger := a.logger.Named("index")
	return pipeline.NewIndexer(
		pipeline.IndexerConfig{
			CatalogURL:         ic.CatalogURL,
			Policy:             policy,
			DescriptorListPath: ic.DescriptorListPath,
		},
		catalog.NewWalker(a.fetcher, logger.Named("walker")),
		catalog.NewResolver(a.fetcher, ic.DescriptorMarker, logger.Named("resolver")),
		ncml.NewExtractor(a.fetcher, schema, ic.ContainerElement, logger.Named("extractor")),
		store,
		logger,
	)
}

// Harvester wires the harvest pipeline. progress receives reap markers.
func (a *App) Harvester(progress io.Writer) (*pipeline.Harvester, error) {
	hc := a.cfg.Harvest
	logger := a.logger.Named("harvest")
	crawler, err := thredds.New(a.fetcher, thredds.Config{
		Selectors:    hc.Selectors,
		SkipPatterns: hc.SkipPatterns,
		MaxDepth:     hc.MaxDepth,
	}, logger.Named("crawler"))
	if err != nil {
		return nil, fmt.Errorf("init crawler: %w", err)
	}
	books := bookkeeper.New(bookkeeper.Paths{
		CrawlResults: hc.CrawlResultsPath,
		Retry:        hc.RetryPath,
		Success:      hc.SuccessPath,
	}, logger.Named("bookkeeper"))
	r := reaper.New(a.fetcher, reaper.Config{Concurrency: hc.Concurrency, Progress: progress}, logger.Named("reaper"))
	return pipeline.NewHarvester(pipeline.HarvesterConfig{
		CatalogURL:   hc.CatalogURL,
		TargetRoot:   hc.ISOPath,
		ServiceLabel: hc.ServiceLabel,
	}, crawler, r, books, logger)
}

// Close stops the status server and flushes the logger.
func (a *App) Close() {
	if a.stop != nil {
		a.stop()
	}
	_ = a.logger.Sync()
}
