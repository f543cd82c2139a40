package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hierosoft/hierosoft/pkg/transaction"
	"github.com/Hierosoft/hierosoft/pkg/ui"
	"github.com/Hierosoft/hierosoft/pkg/undo"
)

func newUninstallCmd(a *app) *cobra.Command {
	var (
		shell       bool
		dryRun      bool
		stopOnError bool
	)
	cmd := &cobra.Command{
		Use:   "uninstall LUID",
		Short: MsgUninstallShort,
		Long:  MsgUninstallLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := a.printer(cmd)
			if err != nil {
				return err
			}
			store := transaction.NewStore(a.fs, a.paths, a.logger)
			rec, _, err := store.Latest(args[0])
			if err != nil {
				return err
			}
			if shell {
				fmt.Fprintf(cmd.OutOrStdout(), MsgShellUninstall+"\n", rec.UninstallScript)
				return nil
			}

			runner := undo.New(undo.Options{
				FS:          a.fs,
				Logger:      a.logger,
				DryRun:      dryRun,
				StopOnError: stopOnError,
			})
			report, err := runner.Run(cmd.Context(), rec.UninstallScript)
			if err != nil {
				return err
			}
			if dryRun {
				for _, res := range report.Results {
					fmt.Fprintln(cmd.OutOrStdout(), res.Command)
				}
				printer.Success(MsgDryRunNotice)
				return nil
			}
			if err := report.Err(); err != nil {
				for _, f := range report.Failures() {
					printer.Warn(fmt.Sprintf("line %d: %s: %v", f.Line, f.Command, f.Err))
				}
				printer.Error(err)
				return reportedError{err}
			}
			if err := store.Retire(rec); err != nil {
				return err
			}
			printer.Success(fmt.Sprintf(MsgUninstalled, rec.LUID, report.Executed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&shell, "shell", false, "print the shell command that uninstalls instead of running it")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the commands without running them")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failing command")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [LUID]",
		Short: MsgStatusShort,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := a.printer(cmd)
			if err != nil {
				return err
			}
			store := transaction.NewStore(a.fs, a.paths, a.logger)

			if len(args) == 1 {
				rec, _, err := store.Latest(args[0])
				if err != nil {
					return err
				}
				if printer.Format() == ui.FormatJSON {
					printer.JSON(rec)
					return nil
				}
				printer.Markdown(ui.RecordMarkdown(rec))
				return nil
			}

			records, err := store.Installed()
			if err != nil {
				return err
			}
			if printer.Format() == ui.FormatJSON {
				if records == nil {
					records = []*transaction.Record{}
				}
				printer.JSON(records)
				return nil
			}
			printer.Markdown(ui.StatusMarkdown(records))
			return nil
		},
	}
}
