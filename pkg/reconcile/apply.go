package reconcile

import (
	"io"
	"io/fs"
	"path/filepath"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/script"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// applier carries out decisions. The simulate applier only counts; the
// commit applier performs the I/O, writes the logs and counts.
type applier interface {
	simulate() bool
	add(d *types.EntryDecision, src fs.FileInfo) error
	mkdir(d *types.EntryDecision, src fs.FileInfo) error
	remove(d *types.EntryDecision) error
	skip(d *types.EntryDecision) error
}

type simulateApplier struct {
	r     *Reconciler
	state *types.RunState
}

func (a *simulateApplier) simulate() bool { return true }

func (a *simulateApplier) add(d *types.EntryDecision, _ fs.FileInfo) error {
	a.state.FilesPlanned++
	a.state.BytesPlanned += d.Bytes
	return nil
}

func (a *simulateApplier) mkdir(*types.EntryDecision, fs.FileInfo) error { return nil }

func (a *simulateApplier) remove(d *types.EntryDecision) error {
	files, bytes, err := treeSize(a.r.fs, d.Dest)
	if err != nil {
		return err
	}
	d.Bytes = bytes
	a.state.DeleteFilesPlanned += files
	a.state.DeletesPlanned += bytes
	return nil
}

func (a *simulateApplier) skip(d *types.EntryDecision) error {
	if d.Reason == types.ReasonIdentical && d.Kind == types.KindFile {
		a.state.Matched.Add(d.Rel)
		a.state.FilesMatched++
		a.state.BytesMatched += d.Bytes
	}
	return nil
}

type commitApplier struct {
	r     *Reconciler
	state *types.RunState
	out   Output
}

func (a *commitApplier) simulate() bool { return false }

func (a *commitApplier) add(d *types.EntryDecision, src fs.FileInfo) error {
	w := a.out.Script
	fsys := a.r.fs

	if d.Kind == types.KindSymlink {
		target, err := fsys.Readlink(d.Source)
		if err != nil {
			return errors.IOError(err, "readlink", d.Source)
		}
		if err := w.Undo(script.Remove(d.Dest)); err != nil {
			return err
		}
		if err := fsys.Symlink(target, d.Dest); err != nil {
			return errors.IOError(err, "symlink", d.Dest)
		}
		a.state.FilesAdded++
		return w.Redo(script.Symlink(target, d.Dest))
	}

	if d.Overwrite {
		if err := a.saveOverwritten(d.Dest); err != nil {
			return err
		}
	} else if err := w.Undo(script.Remove(d.Dest)); err != nil {
		return err
	}

	n, err := copyFile(fsys, d.Source, d.Dest, src)
	if err != nil {
		return err
	}
	a.state.FilesAdded++
	a.state.BytesDone += n
	return w.Redo(script.CopyFile(d.Source, d.Dest))
}

// saveOverwritten archives the file about to be replaced and writes the
// line that puts it back.
func (a *commitApplier) saveOverwritten(dest string) error {
	info, err := a.r.fs.Lstat(dest)
	if err != nil {
		return errors.IOError(err, "stat", dest)
	}
	if filesystem.IsSymlink(info) {
		target, err := a.r.fs.Readlink(dest)
		if err != nil {
			return errors.IOError(err, "readlink", dest)
		}
		return a.out.Script.Undo(script.ForceSymlink(target, dest))
	}
	if _, err := a.out.Backup.Add(dest, false); err != nil {
		return err
	}
	return a.out.Script.Undo(script.RestoreFile(a.out.Backup.Path(), a.out.Backup.EntryName(dest), dest))
}

func (a *commitApplier) mkdir(d *types.EntryDecision, src fs.FileInfo) error {
	fsys := a.r.fs
	perm := fs.FileMode(0755)
	if src != nil && src.IsDir() {
		perm = src.Mode().Perm() | 0700
	}

	// the destination root may need missing parents too
	var created []string
	for p := d.Dest; ; p = filepath.Dir(p) {
		if _, err := fsys.Lstat(p); err == nil {
			break
		} else if !isMissing(err) {
			return errors.IOError(err, "stat", p)
		}
		created = append(created, p)
		if filepath.Dir(p) == p {
			break
		}
	}
	for i := len(created) - 1; i >= 0; i-- {
		p := created[i]
		if err := fsys.Mkdir(p, perm); err != nil {
			return errors.IOError(err, "mkdir", p)
		}
		a.out.Script.DeferRmdir(p)
		if err := a.out.Script.Redo(script.MakeDir(p)); err != nil {
			return err
		}
	}
	return nil
}

func (a *commitApplier) remove(d *types.EntryDecision) error {
	fsys := a.r.fs
	w := a.out.Script

	files, bytes, err := treeSize(fsys, d.Dest)
	if err != nil {
		return err
	}
	d.Bytes = bytes

	if err := a.deferRestore(d.Dest); err != nil {
		return err
	}
	if _, err := a.out.Backup.Add(d.Dest, false); err != nil {
		return err
	}

	if d.Kind == types.KindDir {
		if err := fsys.RemoveAll(d.Dest); err != nil {
			return errors.IOError(err, "remove", d.Dest)
		}
		if err := w.Redo(script.RemoveTree(d.Dest)); err != nil {
			return err
		}
	} else {
		if err := fsys.Remove(d.Dest); err != nil {
			return errors.IOError(err, "remove", d.Dest)
		}
		if err := w.Redo(script.Remove(d.Dest)); err != nil {
			return err
		}
	}

	a.state.DeleteFilesDone += files
	a.state.DeletesDone += bytes
	return nil
}

// deferRestore queues the lines that rebuild path, walking directories
// parent first.
func (a *commitApplier) deferRestore(path string) error {
	fsys := a.r.fs
	w := a.out.Script

	info, err := fsys.Lstat(path)
	if err != nil {
		return errors.IOError(err, "stat", path)
	}
	switch {
	case filesystem.IsSymlink(info):
		target, err := fsys.Readlink(path)
		if err != nil {
			return errors.IOError(err, "readlink", path)
		}
		w.DeferRestore(script.ForceSymlink(target, path))
	case info.IsDir():
		w.DeferRestore(script.MakeDirAll(path))
		entries, err := fsys.ReadDir(path)
		if err != nil {
			return errors.IOError(err, "read dir", path)
		}
		for _, e := range entries {
			if err := a.deferRestore(filepath.Join(path, e.Name())); err != nil {
				return err
			}
		}
	default:
		w.DeferRestore(script.RestoreFile(a.out.Backup.Path(), a.out.Backup.EntryName(path), path))
	}
	return nil
}

func (a *commitApplier) skip(d *types.EntryDecision) error {
	w := a.out.Script
	if d.Hide {
		// identical entries leave no trace in either script
		if d.Reason == types.ReasonIdentical && d.Kind == types.KindFile {
			a.state.FilesMatched++
			a.state.BytesMatched += d.Bytes
		}
		return nil
	}
	if err := w.Redo(script.Skipped(forwardCommand(d), d.Reason)); err != nil {
		return err
	}
	return w.Undo(script.Skipped(script.Remove(d.Dest), d.Reason))
}

// forwardCommand is the command a skipped entry would have run.
func forwardCommand(d *types.EntryDecision) string {
	switch {
	case d.Source == "":
		return script.RemoveTree(d.Dest)
	case d.Kind == types.KindDir:
		return script.MakeDir(d.Dest)
	default:
		return script.CopyFile(d.Source, d.Dest)
	}
}

// copyFile streams src into a temporary file next to dst and renames it
// into place, so an interrupted copy never leaves a truncated dst. Mode
// and modification time follow the source.
func copyFile(fsys filesystem.FS, src, dst string, info fs.FileInfo) (int64, error) {
	in, err := fsys.Open(src)
	if err != nil {
		return 0, errors.IOError(err, "open", src)
	}
	defer func() { _ = in.Close() }()

	perm := fs.FileMode(0644)
	if info != nil {
		perm = info.Mode().Perm()
	}

	tmp := filepath.Join(filepath.Dir(dst), ".hierosoft-"+filepath.Base(dst)+".part")
	out, err := fsys.Create(tmp, perm|0200)
	if err != nil {
		return 0, errors.IOError(err, "create", tmp)
	}
	committed := false
	defer func() {
		if !committed {
			_ = fsys.Remove(tmp)
		}
	}()

	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, errors.IOError(err, "copy", dst).WithDetail("source", src)
	}
	if err := out.Close(); err != nil {
		return n, errors.IOError(err, "close", tmp)
	}
	if err := fsys.Chmod(tmp, perm); err != nil {
		return n, errors.IOError(err, "chmod", tmp)
	}
	if info != nil {
		if err := fsys.Chtimes(tmp, info.ModTime(), info.ModTime()); err != nil {
			return n, errors.IOError(err, "chtimes", tmp)
		}
	}
	if err := fsys.Rename(tmp, dst); err != nil {
		return n, errors.IOError(err, "rename", dst)
	}
	committed = true
	return n, nil
}

// treeSize counts the files below path and their bytes. Symlinks count as
// files of size zero.
func treeSize(fsys filesystem.FS, path string) (int, int64, error) {
	info, err := fsys.Lstat(path)
	if err != nil {
		return 0, 0, errors.IOError(err, "stat", path)
	}
	switch {
	case filesystem.IsSymlink(info):
		return 1, 0, nil
	case !info.IsDir():
		return 1, info.Size(), nil
	}

	entries, err := fsys.ReadDir(path)
	if err != nil {
		return 0, 0, errors.IOError(err, "read dir", path)
	}
	files, bytes := 0, int64(0)
	for _, e := range entries {
		f, b, err := treeSize(fsys, filepath.Join(path, e.Name()))
		if err != nil {
			return files, bytes, err
		}
		files += f
		bytes += b
	}
	return files, bytes, nil
}
