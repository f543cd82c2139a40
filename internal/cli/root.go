package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Hierosoft/hierosoft/internal/version"
	"github.com/Hierosoft/hierosoft/pkg/config"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/logging"
	"github.com/Hierosoft/hierosoft/pkg/paths"
	"github.com/Hierosoft/hierosoft/pkg/ui"
)

// app is the state shared by the commands of one invocation. It is
// filled by the root command's pre-run hook.
type app struct {
	// flags
	verbosity   int
	configFile  string
	format      string
	color       string
	metadataDir string

	cfg      *config.Config
	logger   zerolog.Logger
	closeLog func() error
	paths    *paths.Paths
	fs       filesystem.FS
}

// reportedError marks a failure already shown to the user.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var shown reportedError
		if !errors.As(err, &shown) {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return 1
	}
	return 0
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	a := &app{fs: filesystem.NewOS()}

	rootCmd := &cobra.Command{
		Use:     "hinstall",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			a.logger.Debug().Str("command", cmd.Name()).Msg("Command started")
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		DisableAutoGenTag: true,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&a.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	flags.StringVar(&a.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/hierosoft/config.toml)")
	flags.StringVar(&a.format, "format", "auto", "output format: auto, term, text or json")
	flags.StringVar(&a.color, "color", "", "color mode: auto, always or never (overrides ui.color)")
	flags.StringVar(&a.metadataDir, "metadata-dir", "", "directory holding install records (overrides install.metadata_dir)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newManCmd())
	rootCmd.AddCommand(newInstallCmd(a))
	rootCmd.AddCommand(newPlanCmd(a))
	rootCmd.AddCommand(newUninstallCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))

	return rootCmd
}

// setup resolves configuration, logging and paths. Flags given on the
// command line win over every config layer.
func (a *app) setup(cmd *cobra.Command) error {
	overrides := map[string]interface{}{}
	if cmd.Flags().Changed("verbose") {
		overrides["log.verbosity"] = a.verbosity
	}
	if a.color != "" {
		overrides["ui.color"] = a.color
	}
	if a.metadataDir != "" {
		overrides["install.metadata_dir"] = a.metadataDir
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: a.configFile, Overrides: overrides})
	if err != nil {
		return err
	}
	a.cfg = cfg

	p, err := paths.New(cfg.Install.MetadataDir)
	if err != nil {
		return err
	}
	a.paths = p

	logFile := cfg.Log.File
	if logFile == "" {
		logFile = p.LogFilePath()
	}
	a.logger, a.closeLog = logging.New(logging.Options{
		Verbosity: cfg.Log.Verbosity,
		Console:   cmd.ErrOrStderr(),
		File:      paths.ExpandHome(logFile),
		NoColor:   cfg.UI.Color == ui.ColorNever,
	})
	return nil
}

// printer builds the output printer for cmd.
func (a *app) printer(cmd *cobra.Command) (*ui.Printer, error) {
	format, err := ui.ParseFormat(a.format)
	if err != nil {
		return nil, err
	}
	return ui.NewPrinter(cmd.OutOrStdout(), format, a.cfg.UI.Color), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Long:  `Print detailed version information including commit hash and build date`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, MsgVersionFormat, version.Version)
			if version.Commit != "" {
				fmt.Fprintf(out, MsgCommitFormat, version.Commit)
			}
			if version.Date != "" {
				fmt.Fprintf(out, MsgBuiltFormat, version.Date)
			}
		},
	}
}
