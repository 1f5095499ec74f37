// Package cmd provides the CLI commands for notehunt.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/notehunt/internal/config"
	"github.com/Aman-CERP/notehunt/internal/engine"
	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/logging"
	"github.com/Aman-CERP/notehunt/pkg/version"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "notehunt.skip-config"

// rootOptions holds the persistent flags and the state PersistentPreRunE
// builds from them.
type rootOptions struct {
	configFile string
	root       string
	debug      bool
	batchSize  int

	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command for the notehunt CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notehunt",
		Short: "Keep a full-text index of a notes directory in step with the disk",
		Long: `notehunt tracks every note under a root directory in a local state table
and indexes new or changed notes into a full-text search index.

Run 'notehunt watch' to follow changes live, or 'notehunt crawl' followed by
'notehunt index' for a one-off pass.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("notehunt version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (.yaml or .toml)")
	cmd.PersistentFlags().StringVarP(&opts.root, "root", "r", "", "Notes directory (default: working directory)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		if _, ok := c.Annotations[skipConfig]; ok {
			return nil
		}
		return opts.setup()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		opts.close()
		return nil
	}

	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newReindexCmd(opts))
	cmd.AddCommand(newPurgeCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and starts logging.
func (o *rootOptions) setup() error {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: o.configFile,
		Root:       o.root,
		BatchSize:  o.batchSize,
	})
	if err != nil {
		return err
	}
	o.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	if o.debug {
		logCfg = logging.DebugConfig()
	}
	logCfg.FilePath = cfg.LogPath()
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nherrors.ConfigError("failed to set up logging", err)
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("config_loaded",
		slog.String("root", cfg.Root),
		slog.String("data_dir", cfg.DataDir),
		slog.String("backend", cfg.Index.Backend),
		slog.String("version", version.Version))
	return nil
}

// close stops logging. It is safe to call more than once.
func (o *rootOptions) close() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

func (o *rootOptions) openEngine(ctx context.Context, mode engine.Mode) (*engine.Engine, error) {
	if o.cfg == nil {
		return nil, nherrors.InternalError("configuration not loaded", nil)
	}
	return engine.Open(ctx, o.cfg, mode)
}

// Exit codes returned by Execute.
const (
	exitOK    = 0
	exitError = 1
	exitFatal = 2
)

// Execute runs the root command and returns the process exit code. Errors
// are printed to stderr, as JSON when the failing command was given --json.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := &rootOptions{}
	c, err := newRootCmd(opts).ExecuteContextC(ctx)
	if err != nil {
		slog.Error("command_failed", slog.Any("error", nherrors.FormatForLog(err)))
	}
	opts.close()
	return exitCode(os.Stderr, err, wantsJSON(c))
}

// wantsJSON reports whether c was run with --json set.
func wantsJSON(c *cobra.Command) bool {
	if c == nil {
		return false
	}
	f := c.Flags().Lookup("json")
	return f != nil && f.Changed && f.Value.String() == "true"
}

// exitCode prints err to stderr and maps it to an exit code. Fatal errors,
// the ones that stop notehunt from starting at all, exit 2.
func exitCode(stderr io.Writer, err error, asJSON bool) int {
	if err == nil {
		return exitOK
	}
	if asJSON {
		if data, jsonErr := nherrors.FormatJSON(err); jsonErr == nil {
			_, _ = fmt.Fprintln(stderr, string(data))
		} else {
			_, _ = fmt.Fprint(stderr, nherrors.FormatForCLI(err))
		}
	} else {
		_, _ = fmt.Fprint(stderr, nherrors.FormatForCLI(err))
	}
	if nherrors.IsFatal(err) {
		return exitFatal
	}
	return exitError
}
