package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/bookkeeper"
	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/metrics"
)

// Discoverer lists dataset entries on a catalog page.
type Discoverer interface {
	Discover(ctx context.Context, catalogURL string) ([]harvest.CatalogEntry, error)
}

// LandingResolver lists the descriptors linked from a landing page.
type LandingResolver interface {
	Resolve(ctx context.Context, catalogURL, landingURL string) ([]harvest.DescriptorLink, error)
}

// DescriptorExtractor builds a record from a descriptor document.
type DescriptorExtractor interface {
	Extract(ctx context.Context, descriptorURL string) harvest.AttributeRecord
}

// IndexerConfig holds the values an index run needs.
type IndexerConfig struct {
	CatalogURL string
	Policy     harvest.LandingPolicy
	// DescriptorListPath, when set, receives every descriptor URL seen.
	DescriptorListPath string
}

// IndexSummary reports what an index run did.
type IndexSummary struct {
	RunID           string
	StartedAt       time.Time
	Duration        time.Duration
	Datasets        int
	LandingFailures int
	Descriptors     int
	Inserted        int
	InsertFailures  int
	DescriptorURLs  []string
}

// Indexer runs walk, resolve, extract and insert in discovery order.
type Indexer struct {
	walker    Discoverer
	resolver  LandingResolver
	extractor DescriptorExtractor
	store     harvest.IndexStore
	books     *bookkeeper.Bookkeeper
	cfg       IndexerConfig
	env       runEnv
	logger    *zap.Logger
}

// NewIndexer wires an Indexer. The policy must be valid.
func NewIndexer(
	cfg IndexerConfig,
	walker Discoverer,
	resolver LandingResolver,
	extractor DescriptorExtractor,
	store harvest.IndexStore,
	logger *zap.Logger,
	opts ...Option,
) (*Indexer, error) {
	if _, err := harvest.ParseLandingPolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if walker == nil || resolver == nil || extractor == nil || store == nil {
		return nil, fmt.Errorf("indexer dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		walker:    walker,
		resolver:  resolver,
		extractor: extractor,
		store:     store,
		books:     bookkeeper.New(bookkeeper.Paths{}, logger),
		cfg:       cfg,
		env:       newRunEnv(opts),
		logger:    logger,
	}, nil
}

// Run indexes every descriptor reachable from the catalog. A failed catalog
// fetch is fatal; a failed landing page aborts or is skipped per policy;
// insert failures are logged and counted.
func (ix *Indexer) Run(ctx context.Context) (summary IndexSummary, err error) {
	summary.RunID, summary.StartedAt = ix.env.start()
	logger := ix.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("index run starting", zap.String("catalog_url", ix.cfg.CatalogURL))

	defer func() {
		summary.Duration = ix.env.clock.Now().Sub(summary.StartedAt)
		if ix.cfg.DescriptorListPath != "" {
			ix.books.WriteList(ix.cfg.DescriptorListPath, summary.DescriptorURLs)
		}
	}()

	entries, err := ix.walker.Discover(ctx, ix.cfg.CatalogURL)
	if err != nil {
		return summary, err
	}
	summary.Datasets = len(entries)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("index run: %w", err)
		}
		links, err := ix.resolver.Resolve(ctx, ix.cfg.CatalogURL, entry.URL)
		if err != nil {
			summary.LandingFailures++
			if ix.cfg.Policy == harvest.LandingAbort {
				logger.Error("landing page failed, aborting",
					zap.String("dataset_id", entry.DatasetID),
					zap.String("landing_url", entry.URL),
					zap.Error(err),
				)
				return summary, err
			}
			logger.Warn("landing page failed, skipping",
				zap.String("dataset_id", entry.DatasetID),
				zap.String("landing_url", entry.URL),
				zap.Error(err),
			)
			continue
		}
		for _, link := range links {
			ix.index(ctx, logger, link, &summary)
		}
	}

	logger.Info("index run complete",
		zap.Int("datasets", summary.Datasets),
		zap.Int("descriptors", summary.Descriptors),
		zap.Int("inserted", summary.Inserted),
		zap.Int("insert_failures", summary.InsertFailures),
		zap.Int("landing_failures", summary.LandingFailures),
	)
	return summary, nil
}

func (ix *Indexer) index(ctx context.Context, logger *zap.Logger, link harvest.DescriptorLink, summary *IndexSummary) {
	summary.Descriptors++
	summary.DescriptorURLs = append(summary.DescriptorURLs, link.DescriptorURL)

	record := ix.extractor.Extract(ctx, link.DescriptorURL)
	if err := ix.store.Insert(ctx, record); err != nil {
		summary.InsertFailures++
		metrics.ObserveInsert("failed")
		logger.Warn("insert failed",
			zap.String("location", record.Key()),
			zap.String("kind", string(harvest.KindOf(err))),
			zap.Error(err),
		)
		return
	}
	summary.Inserted++
	metrics.ObserveInsert("ok")
}
