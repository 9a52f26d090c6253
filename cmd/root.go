// Package cmd defines and implements the CLI commands for the tdsharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/tdsharvest/internal/app"
	"github.com/JakeFAU/tdsharvest/internal/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// configKeyAnnotation marks a flag with the configuration key it overrides.
const configKeyAnnotation = "tdsharvest/config-key"

// session tracks the App built for one invocation so it can be closed even
// when the command fails.
type session struct {
	cfgFile string
	app     *app.App
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
}

// newRootCmd creates and configures the root command.
func newRootCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tdsharvest",
		Short: "Harvest metadata from THREDDS Data Servers.",
		Long: `tdsharvest collects metadata from THREDDS catalogs in two ways:

  index    walks an HTML catalog, reads each dataset's NcML descriptor and
           stores its global attributes in a relational index.
  harvest  crawls a catalog.xml tree and mirrors every dataset's ISO
           metadata document to disk, keeping retry and success lists.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flags are parsed and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(s.cfgFile, flagBindings(cmd)...)
			if err != nil {
				return setupError(err)
			}
			a, err := app.NewApp(cmd.Context(), cfg)
			if err != nil {
				return setupError(fmt.Errorf("failed to initialize application services: %w", err))
			}
			s.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&s.cfgFile, "config", "", "config file (yaml, toml or json)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(cmd.PersistentFlags(), "log-level", "logging.level")

	cmd.AddCommand(newIndexCmd(), newHarvestCmd())
	return cmd
}

// bindFlag records the configuration key a flag overrides.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// flagBindings collects the changed, annotated flags visible to cmd.
func flagBindings(cmd *cobra.Command) []config.Binding {
	var out []config.Binding
	visit := func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || !f.Changed {
			return
		}
		out = append(out, config.Binding{Key: keys[0], Flag: f})
	}
	cmd.Flags().VisitAll(visit)
	cmd.InheritedFlags().VisitAll(visit)
	return out
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// run executes the CLI with args and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	s := &session{}
	defer s.close()

	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "tdsharvest: %v\n", err)
	}
	return exitCode(err)
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
