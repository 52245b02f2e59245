// Package cli implements the larder command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// app holds global flag values and state shared by the subcommands of one
// command tree.
type app struct {
	configDir string
	dataDir   string
	jsonMode  bool

	v   *viper.Viper
	log zerolog.Logger

	// open is replaced in tests.
	open func(ctx context.Context, cfg types.Config, opts larder.Options) (*larder.Larder, error)
}

// NewRootCmd creates the top-level "larder" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{open: larder.Open, log: zerolog.Nop()}
	root := &cobra.Command{
		Use:     "larder",
		Short:   "Cached access to restaurants, menus and orders",
		Long:    "larder reads and edits the restaurant console's data through a TTL cache\nbacked by SQLite, Postgres or a Supabase project.",
		Version: larder.Version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/larder)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory (default: $XDG_DATA_HOME/larder)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")

	root.AddCommand(
		a.newVersionCmd(),
		a.newInitCmd(),
		a.newListCmd(),
		a.newGetCmd(),
		a.newCreateCmd(),
		a.newUpdateCmd(),
		a.newDeleteCmd(),
		a.newToggleCmd(),
		a.newStatusCmd(),
		a.newImageCmd(),
		a.newWatchCmd(),
		a.newImportCmd(),
		a.newExportCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "larder:", err)
		return exitCode(err)
	}
	return exitSuccess
}

func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.configDir = configDir
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	a.v = v
	a.log = logging.New(logging.Config{
		Level:  v.GetString(cfgKeyLogLevel),
		Format: v.GetString(cfgKeyLogFormat),
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// config builds the library configuration from flags and config.yaml.
func (a *app) config() (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(a.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	return configFrom(a.v, dataDir), nil
}

// withLarder opens the configured larder, runs fn and closes it.
func (a *app) withLarder(cmd *cobra.Command, fn func(ctx context.Context, l *larder.Larder) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l, err := a.open(ctx, cfg, larder.Options{Logger: a.log})
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	err = fn(ctx, l)
	if cerr := l.Close(); err == nil && cerr != nil {
		err = sysError{fmt.Errorf("close: %w", cerr)}
	}
	return err
}

// userErrors are sentinels caused by bad input rather than a failing system.
var userErrors = []error{
	types.ErrNotFound,
	types.ErrInvalidID,
	types.ErrInvalidData,
	types.ErrInvalidFilter,
	types.ErrUnknownResource,
	types.ErrUnknownField,
	types.ErrInvalidStatus,
	types.ErrInvalidTransition,
	types.ErrNotAuthenticated,
	types.ErrNotToggleable,
	types.ErrBackendEmpty,
	types.ErrBackendUnknown,
	types.ErrDSNRequired,
	types.ErrSupabaseRequired,
	types.ErrCacheStoreUnknown,
	types.ErrCacheTTLInvalid,
	larder.ErrUnsupported,
	errUsage,
}

// errUsage marks malformed command-line input.
var errUsage = errors.New("usage")

// sysError forces exit code 2 for an error that would otherwise be judged by
// its cause.
type sysError struct{ error }

func (e sysError) Unwrap() error { return e.error }

func exitCode(err error) int {
	var se sysError
	if errors.As(err, &se) {
		return exitSysError
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return exitUserError
		}
	}
	return exitSysError
}

func (a *app) out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
