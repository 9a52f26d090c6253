package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tdsharvest/internal/pipeline"
)

// newHarvestCmd creates the 'harvest' subcommand.
func newHarvestCmd() *cobra.Command {
	var retry bool
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Mirror ISO metadata documents from a catalog.xml tree",
		Long: `Crawls the configured catalog.xml and every catalog it references, then
downloads each leaf dataset's ISO document into the target directory. The
crawl results, retry and success files are rewritten on every run; --retry
reaps only the URLs listed in the previous retry file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvestCommand(cmd, pipeline.HarvestOptions{Retry: retry})
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&retry, "retry", false, "reap the previous run's retry list instead of crawling")
	fs.String("catalog-url", "", "root catalog.xml to crawl")
	fs.String("iso-path", "", "directory the documents are mirrored into")
	fs.String("log-path", "", "also write logs to this file")
	fs.Int("concurrency", 1, "resources reaped in parallel")
	bindFlag(fs, "catalog-url", "harvest.catalog_url")
	bindFlag(fs, "iso-path", "harvest.iso_path")
	bindFlag(fs, "log-path", "harvest.log_path")
	bindFlag(fs, "concurrency", "harvest.concurrency")
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, opts pipeline.HarvestOptions) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return setupError(err)
	}
	cfg := a.Config()
	if err := cfg.ValidateHarvest(opts.Retry); err != nil {
		return setupError(err)
	}
	h, err := a.Harvester(cmd.OutOrStdout())
	if err != nil {
		return setupError(err)
	}
	summary, err := h.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "harvested %d of %d resources (%d to retry) in %s [run %s]\n",
		summary.Successes, summary.Resources, summary.Errors, summary.Duration.Round(time.Millisecond), summary.RunID)
	return nil
}
