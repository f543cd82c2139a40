package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Hierosoft/hierosoft/pkg/archive"
	"github.com/Hierosoft/hierosoft/pkg/diff"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/install"
	"github.com/Hierosoft/hierosoft/pkg/manifest"
	"github.com/Hierosoft/hierosoft/pkg/paths"
	"github.com/Hierosoft/hierosoft/pkg/types"
	"github.com/Hierosoft/hierosoft/pkg/ui"
)

// specFlags are shared by install and plan.
type specFlags struct {
	archive        string
	keeps          []string
	replaces       []string
	luid           string
	name           string
	version        string
	organization   string
	followSymlinks bool
	allowExternal  bool
	showDiff       bool
}

func (f *specFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.archive, "archive", "", "install from a zip archive instead of SRC")
	flags.StringArrayVar(&f.keeps, "keep", nil, "path, relative to the package, never overwritten once installed (repeatable)")
	flags.StringArrayVar(&f.replaces, "replace", nil, "path whose installed contents are made to match the package exactly (repeatable)")
	flags.StringVar(&f.luid, "luid", "", "package id (default from the manifest, or the DEST directory name)")
	flags.StringVar(&f.name, "name", "", "package display name")
	flags.StringVar(&f.version, "version", "", "package version")
	flags.StringVar(&f.organization, "organization", "", "package publisher")
	flags.BoolVar(&f.followSymlinks, "follow-symlinks", false, "compare and copy what symlinks point to")
	flags.BoolVar(&f.allowExternal, "allow-external", false, "allow followed symlinks to leave their tree")
	flags.BoolVar(&f.showDiff, "diff", false, "show unified diffs of text files that would be overwritten")
}

// args accepts "SRC DEST", or "DEST" alone with --archive.
func (f *specFlags) args(cmd *cobra.Command, args []string) error {
	if f.archive != "" {
		return cobra.ExactArgs(1)(cmd, args)
	}
	return cobra.ExactArgs(2)(cmd, args)
}

// session resolves the package source, merges its manifest and returns a
// validated session. cleanup removes an extracted archive and must be
// called once the session is done.
func (f *specFlags) session(a *app, cmd *cobra.Command, args []string, confirm install.ConfirmFunc) (*install.Session, func(), error) {
	cleanup := func() {}
	src, dest := "", args[len(args)-1]
	if f.archive != "" {
		work, err := os.MkdirTemp(ensureDir(a.paths.CacheDir()), "extract-")
		if err != nil {
			return nil, cleanup, errors.IOError(err, "mkdir temp", a.paths.CacheDir())
		}
		cleanup = func() { _ = os.RemoveAll(work) }
		root, err := archive.Extract(a.fs, f.archive, work)
		if err != nil {
			return nil, cleanup, err
		}
		a.logger.Info().Str("archive", f.archive).Str("root", root).Msg("archive extracted")
		src = root
	} else {
		src = args[0]
	}

	var err error
	if src, err = filepath.Abs(paths.ExpandHome(src)); err != nil {
		return nil, cleanup, errors.Wrap(err, errors.ErrInvalidInput, "source path")
	}
	if dest, err = filepath.Abs(paths.ExpandHome(dest)); err != nil {
		return nil, cleanup, errors.Wrap(err, errors.ErrInvalidInput, "destination path")
	}

	cfg := a.cfg.Install
	reserved := paths.ReservedFolders(cfg.Reserved...)
	// the manifest is read from src, so it is checked first
	if err := paths.ValidateInstallRoot(src, reserved); err != nil {
		return nil, cleanup, errors.Wrap(err, errors.ErrSpecInvalid, "invalid source root")
	}

	spec := types.InstallSpec{
		SourceRoot: src,
		DestRoot:   dest,
		Keeps:      types.NewPathSet(f.keeps...),
		Replaces:   types.NewPathSet(f.replaces...),
		Meta: types.PackageMeta{
			LUID:         f.luid,
			Name:         f.name,
			Version:      f.version,
			Organization: f.organization,
		},
	}
	m, err := manifest.Load(a.fs, src, a.logger)
	if err != nil {
		return nil, cleanup, err
	}
	m.Apply(&spec)
	if spec.Meta.LUID == "" {
		spec.Meta.LUID = filepath.Base(dest)
	}

	sess, err := install.New(spec, install.Options{
		FS:               a.fs,
		Paths:            a.paths,
		Logger:           a.logger,
		Reserved:         reserved,
		FollowSymlinks:   f.followSymlinks || cfg.FollowSymlinks,
		AllowExternal:    f.allowExternal || cfg.AllowExternal,
		ProgressInterval: cfg.ProgressInterval,
		Confirm:          confirm,
	})
	return sess, cleanup, err
}

func newInstallCmd(a *app) *cobra.Command {
	var (
		f      specFlags
		yes    bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "install [SRC] DEST",
		Short: MsgInstallShort,
		Long:  MsgInstallLong,
		Example: `  # Install or update a program
  hinstall install ./blender-4.1 ~/.local/lib/blender --keep config --replace lib

  # Install from a zip, without prompting
  hinstall install --archive blender-4.1.zip ~/.local/lib/blender --yes`,
		Args: func(cmd *cobra.Command, args []string) error { return f.args(cmd, args) },
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return runPlan(a, &f, cmd, args)
			}
			return runInstall(a, &f, cmd, args, yes)
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before installing over issues")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "same as plan")
	return cmd
}

func newPlanCmd(a *app) *cobra.Command {
	var f specFlags
	cmd := &cobra.Command{
		Use:   "plan [SRC] DEST",
		Short: MsgPlanShort,
		Args:  func(cmd *cobra.Command, args []string) error { return f.args(cmd, args) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(a, &f, cmd, args)
		},
	}
	f.bind(cmd)
	return cmd
}

func runInstall(a *app, f *specFlags, cmd *cobra.Command, args []string, yes bool) error {
	printer, err := a.printer(cmd)
	if err != nil {
		return err
	}
	prog := ui.NewProgress(cmd.ErrOrStderr(), printer.Styled())
	in := bufio.NewReader(cmd.InOrStdin())

	confirm := func(issues []types.Issue, planned *types.RunState, plan types.Plan) bool {
		if len(issues) == 0 {
			return true
		}
		prog.Hold()
		printer.Totals(planned)
		printer.Issues(issues)
		if yes {
			return true
		}
		fmt.Fprint(cmd.OutOrStdout(), MsgConfirm)
		answer, _ := in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		}
		return false
	}

	sess, cleanup, err := f.session(a, cmd, args, confirm)
	defer cleanup()
	if err != nil {
		prog.Wait()
		return err
	}

	res := sess.Install(cmd.Context(), prog.Callback())
	prog.Wait()
	printer.Result(res)
	if res.Err != nil {
		return reportedError{res.Err}
	}
	return nil
}

func runPlan(a *app, f *specFlags, cmd *cobra.Command, args []string) error {
	printer, err := a.printer(cmd)
	if err != nil {
		return err
	}
	sess, cleanup, err := f.session(a, cmd, args, nil)
	defer cleanup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	planned, plan, issues, err := sess.Plan(ctx)
	if err != nil {
		return err
	}

	var diffs []diff.FileDiff
	if f.showDiff {
		diffs, err = diff.Overwrites(ctx, plan, diff.Options{FS: a.fs, Logger: a.logger})
		if err != nil {
			return err
		}
	}

	if printer.Format() == ui.FormatJSON {
		printer.JSON(struct {
			Planned *types.RunState `json:"planned"`
			Plan    types.Plan      `json:"plan"`
			Issues  []types.Issue   `json:"issues,omitempty"`
			Diffs   []diff.FileDiff `json:"diffs,omitempty"`
		}{planned, plan.Visible(), issues, diffs})
		return nil
	}

	if plan.Count(types.ModeAdd)+plan.Count(types.ModeDelete) == 0 {
		printer.Success(MsgNothingToDo)
	} else {
		printer.Plan(plan, a.cfg.Log.Verbosity > 0)
		printer.Totals(planned)
	}
	printer.Issues(issues)
	printer.Diffs(diffs)
	return nil
}

func ensureDir(dir string) string {
	_ = os.MkdirAll(dir, 0755)
	return dir
}
