package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newIndexCmd creates the 'index' subcommand.
func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index NcML global attributes from an HTML catalog",
		Long: `Walks the configured HTML catalog page, follows each dataset's landing
page to its NcML descriptor and inserts one row of global attributes per
descriptor into the index store.`,
		Args: cobra.NoArgs,
		RunE: runIndexCommand,
	}
	fs := cmd.Flags()
	fs.String("catalog-url", "", "HTML catalog page to walk")
	fs.String("store", "", "index store: sqlite, postgres or memory")
	fs.String("db-path", "", "sqlite database file")
	fs.Bool("reset", true, "recreate the index before inserting")
	fs.String("landing-failure-policy", "", "what to do when a landing page fails: abort or skip")
	fs.String("descriptor-list", "", "also write every descriptor URL to this file")
	bindFlag(fs, "catalog-url", "index.catalog_url")
	bindFlag(fs, "store", "index.store")
	bindFlag(fs, "db-path", "index.db_path")
	bindFlag(fs, "reset", "index.reset")
	bindFlag(fs, "landing-failure-policy", "index.landing_failure_policy")
	bindFlag(fs, "descriptor-list", "index.descriptor_list_path")
	return cmd
}

func runIndexCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return setupError(err)
	}
	cfg := a.Config()
	if err := cfg.ValidateIndex(); err != nil {
		return setupError(err)
	}
	schema, err := cfg.Index.Schema()
	if err != nil {
		return setupError(err)
	}
	store, err := a.OpenIndexStore(cmd.Context(), schema)
	if err != nil {
		return setupError(fmt.Errorf("open index store: %w", err))
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			a.Logger().Warn("Failed to close index store", zap.Error(cerr))
		}
	}()

	ix, err := a.Indexer(schema, store)
	if err != nil {
		return setupError(err)
	}
	summary, err := ix.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d of %d descriptors from %d datasets (%d insert failures, %d landing failures) in %s [run %s]\n",
		summary.Inserted, summary.Descriptors, summary.Datasets, summary.InsertFailures, summary.LandingFailures,
		summary.Duration.Round(time.Millisecond), summary.RunID)
	return nil
}
