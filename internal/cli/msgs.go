package cli

// Short messages (one-liners)
const (
	MsgRootShort      = "Install, update and uninstall program trees reversibly"
	MsgVersionShort   = "Print version information"
	MsgInstallShort   = "Install or update SRC into DEST"
	MsgPlanShort      = "Show what an install would change, without changing anything"
	MsgUninstallShort = "Roll back the latest install of a package"
	MsgStatusShort    = "List installed packages, or describe one"
	MsgManShort       = "Generate man pages"

	MsgVersionFormat = "hinstall version %s\n"
	MsgCommitFormat  = "Commit: %s\n"
	MsgBuiltFormat   = "Built:  %s\n"

	MsgConfirm        = "Continue with the install? [y/N] "
	MsgNothingToDo    = "Nothing to change."
	MsgUninstalled    = "Uninstalled %s (%d commands run)"
	MsgShellUninstall = "sh %s"
	MsgDryRunNotice   = "DRY RUN - nothing was changed"
)

const MsgRootLong = `hinstall copies a program tree from a source directory (or a zip
archive) into a destination directory. It compares before copying, never
overwrites paths listed as kept, deletes stale files only below paths listed
as replaced, and writes an uninstall script that restores the destination
to the state it had before the install.

Package metadata and the keep and replace lists may come from a
hierosoft.toml or hierosoft.yaml file, or an AppStream metainfo file, at the
root of the package.`

const MsgInstallLong = `Install reconciles DEST with SRC in two passes. The first pass only
looks; the second copies, deletes and writes the redo log, the uninstall
script and a zip archive of everything it removed or overwrote.

Running the same install twice changes nothing the second time.`

const MsgUninstallLong = `Uninstall runs the uninstall script written by the latest install of
LUID, restoring overwritten and removed files from its backup archive, then
retires the install record. With --shell the script is only printed as a
shell command.`
