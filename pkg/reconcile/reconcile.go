// Package reconcile walks an extracted package tree against an install
// destination and decides, entry by entry, what to add, skip, delete or
// descend into.
//
// The walk is source-driven and pre-order with siblings in name order.
// The same walk runs twice: the simulate pass only accounts bytes and
// files, the commit pass performs the I/O and writes the redo log, undo
// script and backup archive. The per-entry side effects live in two
// applier implementations so the walker itself is identical for both
// passes.
package reconcile

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/archive"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/script"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// ContentComparator tells whether two files hold the same bytes.
type ContentComparator interface {
	Identical(a, b string) (bool, error)
}

// ProgressFunc is called after every entry with the running totals.
type ProgressFunc func(rel string, state *types.RunState)

// Options configures a Reconciler.
type Options struct {
	FS         filesystem.FS
	Comparator ContentComparator
	Logger     zerolog.Logger

	// FollowSymlinks compares and copies what symlinks point to instead of
	// the links themselves.
	FollowSymlinks bool

	// AllowExternal permits followed symlinks that resolve outside their
	// root.
	AllowExternal bool

	Progress ProgressFunc
}

// Output receives the commit pass side effects.
type Output struct {
	Script *script.Writer
	Backup *archive.Backup
}

// Reconciler reconciles one InstallSpec.
type Reconciler struct {
	spec   types.InstallSpec
	fs     filesystem.FS
	cmp    ContentComparator
	logger zerolog.Logger
	opts   Options
}

// New returns a reconciler for spec. The spec is expected to be valid.
func New(spec types.InstallSpec, opts Options) *Reconciler {
	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	return &Reconciler{
		spec:   spec.Normalized(),
		fs:     opts.FS,
		cmp:    opts.Comparator,
		logger: opts.Logger,
		opts:   opts,
	}
}

// Simulate runs the accounting-only pass. The returned state carries the
// planned totals and the set of files proven identical.
func (r *Reconciler) Simulate(ctx context.Context) (*types.RunState, types.Plan, error) {
	state := types.NewRunState()
	app := &simulateApplier{r: r, state: state}
	plan, err := r.run(ctx, app, state)
	return state, plan, err
}

// Commit runs the I/O pass. matched is the Matched set from Simulate; it is
// read, never modified.
func (r *Reconciler) Commit(ctx context.Context, matched types.PathSet, out Output) (*types.RunState, types.Plan, error) {
	if out.Script == nil || out.Backup == nil {
		return nil, nil, errors.New(errors.ErrInternal, "commit needs a script writer and a backup archive")
	}
	state := &types.RunState{Matched: matched}
	if state.Matched == nil {
		state.Matched = types.PathSet{}
	}
	app := &commitApplier{r: r, state: state, out: out}
	plan, err := r.run(ctx, app, state)
	return state, plan, err
}

type walk struct {
	r     *Reconciler
	app   applier
	state *types.RunState
	plan  types.Plan
	ctx   context.Context
}

func (r *Reconciler) run(ctx context.Context, app applier, state *types.RunState) (types.Plan, error) {
	w := &walk{r: r, app: app, state: state, ctx: ctx}

	phase := "simulate"
	if !app.simulate() {
		phase = "commit"
	}
	logger := r.logger.With().Str("pass", phase).Logger()
	logger.Debug().Str("source", r.spec.SourceRoot).Str("dest", r.spec.DestRoot).Msg("pass started")

	err := w.root()

	logger.Debug().
		Int("entries", len(w.plan)).
		Int64("bytes_planned", state.BytesPlanned).
		Int64("bytes_done", state.BytesDone).
		Int64("deletes_planned", state.DeletesPlanned).
		Int64("deletes_done", state.DeletesDone).
		Int("matched", state.FilesMatched).
		AnErr("error", err).
		Msg("pass finished")
	return w.plan, err
}

func (w *walk) root() error {
	srcInfo, err := w.r.fs.Stat(w.r.spec.SourceRoot)
	if err != nil {
		return errors.IOError(err, "stat", w.r.spec.SourceRoot)
	}
	if !srcInfo.IsDir() {
		return errors.Newf(errors.ErrIO, "source %s is not a directory", w.r.spec.SourceRoot).
			WithDetail("path", w.r.spec.SourceRoot)
	}

	dstInfo, err := w.r.fs.Stat(w.r.spec.DestRoot)
	switch {
	case err == nil && !dstInfo.IsDir():
		return errors.Newf(errors.ErrIO, "destination %s is not a directory", w.r.spec.DestRoot).
			WithDetail("path", w.r.spec.DestRoot)
	case err != nil && !isMissing(err):
		return errors.IOError(err, "stat", w.r.spec.DestRoot)
	case err != nil:
		d := types.EntryDecision{
			Source: w.r.spec.SourceRoot,
			Dest:   w.r.spec.DestRoot,
			Mode:   types.ModeRecurse,
			Kind:   types.KindDir,
			Reason: types.ReasonNew,
		}
		if err := w.app.mkdir(&d, srcInfo); err != nil {
			return w.fail(d, err)
		}
		w.record(d)
	}

	return w.visitDir("", false)
}

// visitDir reconciles the children of rel. destGone means the destination
// directory does not exist yet in this pass even if something is still
// at its path.
func (w *walk) visitDir(rel string, destGone bool) error {
	spec := w.r.spec
	if !destGone && (spec.Replaces.Covers(rel) || spec.Replaces.HasBelow(rel)) {
		if err := w.sweep(rel, true); err != nil {
			return err
		}
	}

	srcDir := w.r.sourcePath(rel)
	entries, err := w.r.fs.ReadDir(srcDir)
	if err != nil {
		return errors.IOError(err, "read dir", srcDir)
	}

	for _, e := range entries {
		if err := w.checkCancel(); err != nil {
			return err
		}
		if err := w.visitEntry(join(rel, e.Name()), destGone); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) visitEntry(rel string, destGone bool) error {
	d, srcInfo := w.r.decide(rel, destGone, w.state.Matched, w.app.simulate())

	if d.Mode == types.ModeDelete && d.ThenAdd {
		if err := w.app.remove(&d); err != nil {
			return w.fail(d, err)
		}
		w.record(d)
		destGone = true
		d, srcInfo = w.r.decide(rel, true, w.state.Matched, w.app.simulate())
	}

	switch d.Mode {
	case types.ModeError:
		w.plan = append(w.plan, d)
		return d.Err
	case types.ModeSkip:
		if err := w.app.skip(&d); err != nil {
			return w.fail(d, err)
		}
	case types.ModeAdd:
		if err := w.app.add(&d, srcInfo); err != nil {
			return w.fail(d, err)
		}
	case types.ModeRecurse:
		if d.Reason == types.ReasonNew {
			if err := w.app.mkdir(&d, srcInfo); err != nil {
				return w.fail(d, err)
			}
			destGone = true
		}
		w.record(d)
		return w.visitDir(rel, destGone)
	}
	w.record(d)
	return nil
}

// sweep deletes destination entries of rel that the source lacks and that
// Replaces covers. Directories that only hold Replaces entries deeper down
// are descended into. srcExists is false below a directory that exists
// only at the destination.
func (w *walk) sweep(rel string, srcExists bool) error {
	spec := w.r.spec
	dstDir := w.r.destPath(rel)
	dstEntries, err := w.r.fs.ReadDir(dstDir)
	if err != nil {
		if isMissing(err) {
			return nil
		}
		return errors.IOError(err, "read dir", dstDir)
	}

	inSource := map[string]bool{}
	if srcExists {
		srcEntries, err := w.r.fs.ReadDir(w.r.sourcePath(rel))
		if err != nil {
			return errors.IOError(err, "read dir", w.r.sourcePath(rel))
		}
		for _, e := range srcEntries {
			inSource[e.Name()] = true
		}
	}

	for _, e := range dstEntries {
		if inSource[e.Name()] {
			continue
		}
		if err := w.checkCancel(); err != nil {
			return err
		}
		child := join(rel, e.Name())
		dst := w.r.destPath(child)
		info, err := w.r.fs.Lstat(dst)
		if err != nil {
			return errors.IOError(err, "stat", dst)
		}
		kind := kindOf(info)
		isDir := kind == types.KindDir
		if !spec.Replaces.Covers(child) && !(isDir && spec.Replaces.HasBelow(child)) {
			continue
		}

		switch {
		case spec.Keeps.Covers(child):
			d := types.EntryDecision{
				Rel:     child,
				Dest:    dst,
				Mode:    types.ModeSkip,
				Kind:    kind,
				Reason:  types.ReasonKept,
				Warning: child + " will not be overwritten",
			}
			if err := w.app.skip(&d); err != nil {
				return w.fail(d, err)
			}
			w.record(d)
		case isDir && spec.Replaces.Covers(child) && !spec.Keeps.HasBelow(child):
			if err := w.sweepDelete(child, dst, kind); err != nil {
				return err
			}
		case isDir:
			if err := w.sweep(child, false); err != nil {
				return err
			}
		default:
			if err := w.sweepDelete(child, dst, kind); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walk) sweepDelete(rel, dst string, kind types.Kind) error {
	d := types.EntryDecision{
		Rel:    rel,
		Dest:   dst,
		Mode:   types.ModeDelete,
		Kind:   kind,
		Reason: types.ReasonReplaced,
	}
	if err := w.app.remove(&d); err != nil {
		return w.fail(d, err)
	}
	w.record(d)
	return nil
}

func (w *walk) record(d types.EntryDecision) {
	w.plan = append(w.plan, d)
	if d.Hide {
		w.r.logger.Trace().Str("rel", d.Rel).Str("mode", string(d.Mode)).Str("reason", d.Reason).Msg("entry")
	} else {
		w.r.logger.Debug().Str("rel", d.Rel).Str("mode", string(d.Mode)).Str("kind", string(d.Kind)).Str("reason", d.Reason).Int64("bytes", d.Bytes).Msg("entry")
	}
	if d.Warning != "" {
		w.r.logger.Warn().Str("rel", d.Rel).Msg(d.Warning)
	}
	if w.r.opts.Progress != nil {
		w.r.opts.Progress(d.Rel, w.state)
	}
}

// fail records d as the failing entry and returns err.
func (w *walk) fail(d types.EntryDecision, err error) error {
	d.Mode = types.ModeError
	d.Err = err
	w.plan = append(w.plan, d)
	w.r.logger.Error().Err(err).Str("rel", d.Rel).Msg("entry failed")
	return err
}

func (w *walk) checkCancel() error {
	if err := w.ctx.Err(); err != nil {
		return errors.Wrap(err, errors.ErrCancelled, "install cancelled")
	}
	return nil
}

func (r *Reconciler) sourcePath(rel string) string {
	return filepath.Join(r.spec.SourceRoot, filepath.FromSlash(rel))
}

func (r *Reconciler) destPath(rel string) string {
	return filepath.Join(r.spec.DestRoot, filepath.FromSlash(rel))
}

func join(rel, name string) string {
	if rel == "" {
		return name
	}
	return rel + "/" + name
}

func kindOf(info fs.FileInfo) types.Kind {
	switch {
	case filesystem.IsSymlink(info):
		return types.KindSymlink
	case info.IsDir():
		return types.KindDir
	default:
		return types.KindFile
	}
}
