package reconcile

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/paths"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// side is one end of an entry after optional symlink resolution.
type side struct {
	path   string
	lstat  fs.FileInfo
	info   fs.FileInfo // what is compared: the link itself or its target
	kind   types.Kind
	isLink bool // still a link after resolution
	target string
}

// Decide returns the decision for rel as the simulate pass would make it
// right now, without side effects.
func (r *Reconciler) Decide(rel string) types.EntryDecision {
	d, _ := r.decide(paths.NormalizeRelative(rel), false, nil, true)
	return d
}

// decide classifies one source entry. The returned FileInfo describes the
// source as it will be copied.
func (r *Reconciler) decide(rel string, destGone bool, matched types.PathSet, simulate bool) (types.EntryDecision, fs.FileInfo) {
	d := types.EntryDecision{
		Rel:    rel,
		Source: r.sourcePath(rel),
		Dest:   r.destPath(rel),
	}

	// Step 1: source must resolve inside its root.
	src, err := r.resolve(d.Source, r.spec.SourceRoot)
	if err != nil {
		if isMissing(err) {
			err = errors.IOError(err, "stat", d.Source)
		}
		return errorDecision(d, err), nil
	}
	d.Kind = src.kind

	// Step 2: nothing at the destination.
	var dst *side
	if !destGone {
		dst, err = r.resolve(d.Dest, r.spec.DestRoot)
		if err != nil && !isMissing(err) {
			return errorDecision(d, err), nil
		}
	}
	if dst == nil {
		return addOrCreate(d, src), src.info
	}

	// Step 3a: keeps win over everything else.
	if r.spec.Keeps.Has(rel) {
		d.Mode = types.ModeSkip
		d.Reason = types.ReasonKept
		d.Warning = rel + " will not be overwritten"
		return d, src.info
	}

	// Step 3b: a link on one side only.
	if src.isLink != dst.isLink && !r.opts.FollowSymlinks {
		d.Mode = types.ModeSkip
		d.Reason = types.ReasonSymlinkMismatch
		d.Warning = "symlink mismatch at " + rel
		return d, src.info
	}

	// Step 3c: file vs directory, or a link vs a resolved entry. A
	// directory holding kept entries is never removed to make room.
	if src.kind != dst.kind {
		if kindOf(dst.lstat) == types.KindDir && r.spec.Keeps.HasBelow(rel) {
			d.Mode = types.ModeSkip
			d.Reason = types.ReasonKept
			d.Warning = rel + " holds kept entries and will not be overwritten"
			return d, src.info
		}
		return deleteThenAdd(d, dst, types.ReasonTypeConflict), src.info
	}

	switch src.kind {
	// Step 3d
	case types.KindSymlink:
		if src.target == dst.target {
			return hiddenSkip(d, types.ReasonIdentical), src.info
		}
		return deleteThenAdd(d, dst, types.ReasonChanged), src.info

	// Step 3f
	case types.KindDir:
		d.Mode = types.ModeRecurse
		d.Hide = true
		return d, src.info
	}

	// Step 3e: both regular files.
	d.Bytes = src.info.Size()
	if simulate {
		same := false
		if r.cmp != nil {
			same, err = r.cmp.Identical(d.Source, d.Dest)
			if err != nil {
				r.logger.Warn().Err(err).Str("rel", rel).Msg("compare failed, overwriting")
				same = false
			}
		}
		if same {
			return hiddenSkip(d, types.ReasonIdentical), src.info
		}
	} else if matched.Has(rel) && src.info.Size() == dst.info.Size() {
		return hiddenSkip(d, types.ReasonIdentical), src.info
	}

	d.Mode = types.ModeAdd
	d.Reason = types.ReasonChanged
	d.Overwrite = true
	return d, src.info
}

// resolve stats path and, when symlinks are followed, what it points to.
// root is the tree path belongs to.
func (r *Reconciler) resolve(path, root string) (*side, error) {
	lst, err := r.fs.Lstat(path)
	if err != nil {
		if isMissing(err) {
			return nil, err
		}
		return nil, errors.IOError(err, "stat", path)
	}
	s := &side{path: path, lstat: lst, info: lst, kind: kindOf(lst)}
	if !filesystem.IsSymlink(lst) {
		return s, nil
	}

	s.isLink = true
	s.target, err = r.fs.Readlink(path)
	if err != nil {
		return nil, errors.IOError(err, "readlink", path)
	}
	if !r.opts.FollowSymlinks {
		return s, nil
	}

	resolved := s.target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(path), resolved)
	}
	if !r.opts.AllowExternal && !paths.IsWithin(root, resolved) {
		return nil, errors.Newf(errors.ErrNotUnderRoot, "%s points to %s which is not under %s", path, s.target, root).
			WithDetail("path", path).
			WithDetail("root", root)
	}

	info, err := r.fs.Stat(path)
	if err != nil {
		// dangling link, compared as a link
		return s, nil
	}
	if info.IsDir() && paths.IsWithin(resolved, path) {
		return nil, errors.Newf(errors.ErrNotUnderRoot, "%s points to its own ancestor %s", path, resolved).
			WithDetail("path", path)
	}
	s.info = info
	s.kind = kindOf(info)
	s.isLink = false
	return s, nil
}

func addOrCreate(d types.EntryDecision, src *side) types.EntryDecision {
	d.Kind = src.kind
	d.Reason = types.ReasonNew
	if src.kind == types.KindDir {
		d.Mode = types.ModeRecurse
		return d
	}
	d.Mode = types.ModeAdd
	if src.kind == types.KindFile {
		d.Bytes = src.info.Size()
	}
	return d
}

func deleteThenAdd(d types.EntryDecision, dst *side, reason string) types.EntryDecision {
	d.Mode = types.ModeDelete
	d.Kind = kindOf(dst.lstat)
	d.Reason = reason
	d.ThenAdd = true
	return d
}

func hiddenSkip(d types.EntryDecision, reason string) types.EntryDecision {
	d.Mode = types.ModeSkip
	d.Reason = reason
	d.Hide = true
	return d
}

func errorDecision(d types.EntryDecision, err error) types.EntryDecision {
	d.Mode = types.ModeError
	d.Err = err
	return d
}

// isMissing treats ENOTDIR like ENOENT: below a file that stands where a
// directory is expected, nothing exists yet.
func isMissing(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR)
}
