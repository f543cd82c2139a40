// Package install runs one install transaction: validate the spec,
// simulate, optionally confirm, commit, and finalize the records.
package install

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/archive"
	"github.com/Hierosoft/hierosoft/pkg/compare"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/paths"
	"github.com/Hierosoft/hierosoft/pkg/reconcile"
	"github.com/Hierosoft/hierosoft/pkg/script"
	"github.com/Hierosoft/hierosoft/pkg/transaction"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// DefaultProgressInterval is used when Options.ProgressInterval is zero.
const DefaultProgressInterval = 250 * time.Millisecond

// ShortcutInstaller creates a desktop shortcut for an installed
// executable. A non-empty warning or an error is reported, never fatal.
type ShortcutInstaller interface {
	InstallShortcut(exePath, destRoot string, meta types.PackageMeta) (warning string, err error)
}

// ConfirmFunc is asked after the simulate pass. Returning false stops the
// install before anything is written to the destination.
type ConfirmFunc func(issues []types.Issue, planned *types.RunState, plan types.Plan) bool

// Options configures a Session.
type Options struct {
	FS     filesystem.FS
	Paths  *paths.Paths
	Logger zerolog.Logger

	// Reserved replaces the folders neither root may be or contain. nil
	// means paths.ReservedFolders().
	Reserved []string

	FollowSymlinks bool
	AllowExternal  bool

	// ProgressInterval is the minimum time between progress callbacks.
	// Negative reports every entry.
	ProgressInterval time.Duration

	Shortcuts ShortcutInstaller
	Confirm   ConfirmFunc

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Session is one install of one spec. It is not reusable.
type Session struct {
	spec   types.InstallSpec
	opts   Options
	fs     filesystem.FS
	store  *transaction.Store
	logger zerolog.Logger
	state  types.Status
}

// New validates spec and returns a session in the created state. Nothing
// is read or written before validation passes.
func New(spec types.InstallSpec, opts Options) (*Session, error) {
	reserved := opts.Reserved
	if reserved == nil {
		reserved = paths.ReservedFolders()
	}
	if err := spec.Validate(reserved); err != nil {
		return nil, err
	}

	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Paths == nil {
		p, err := paths.New("")
		if err != nil {
			return nil, err
		}
		opts.Paths = p
	}

	logger := opts.Logger.With().Str("component", "install").Str("luid", spec.Meta.LUID).Logger()
	return &Session{
		spec:   spec.Normalized(),
		opts:   opts,
		fs:     opts.FS,
		store:  transaction.NewStore(opts.FS, opts.Paths, logger),
		logger: logger,
		state:  types.StatusCreated,
	}, nil
}

// State returns the lifecycle state.
func (s *Session) State() types.Status { return s.state }

// Spec returns the normalized spec.
func (s *Session) Spec() types.InstallSpec { return s.spec }

func (s *Session) reconciler(logger zerolog.Logger, progress reconcile.ProgressFunc) *reconcile.Reconciler {
	return reconcile.New(s.spec, reconcile.Options{
		FS:             s.fs,
		Comparator:     compare.New(s.fs, logger),
		Logger:         logger,
		FollowSymlinks: s.opts.FollowSymlinks,
		AllowExternal:  s.opts.AllowExternal,
		Progress:       progress,
	})
}

// Plan runs the simulate pass alone and reports what Install would do.
func (s *Session) Plan(ctx context.Context) (*types.RunState, types.Plan, []types.Issue, error) {
	r := s.reconciler(s.logger, nil)
	planned, plan, err := r.Simulate(ctx)
	if err != nil {
		return planned, plan, nil, err
	}
	return planned, plan, s.issues(plan), nil
}

// Install runs both passes and finalizes the transaction. The returned
// result is also delivered to cb as the terminal snapshot. Install never
// panics on install failures; they are in Result.Err.
func (s *Session) Install(ctx context.Context, cb types.ProgressFunc) *types.Result {
	start := s.opts.Now()
	res := &types.Result{
		InstallID: transaction.NewInstallID(start),
		RunID:     transaction.NewRunID(),
	}
	logger := s.logger.With().Str("install_id", res.InstallID).Str("run_id", res.RunID).Logger()
	tick := newThrottle(cb, s.opts.ProgressInterval, s.opts.Now)

	finish := func(final types.Status, err error) *types.Result {
		s.state = final
		res.Final = final
		res.Status = types.StatusDone
		res.Err = err
		if final == types.StatusDeclined {
			res.Status = types.StatusDeclined
		}
		res.Duration = s.opts.Now().Sub(start)
		snap := commitSnapshot("", &res.Commit, &res.Simulate)
		snap.Status = res.Status
		snap.Err = err
		tick.final(snap)

		ev := logger.Info()
		if err != nil {
			ev = logger.Error().Err(err)
		}
		ev.Str("final", string(final)).
			Int64("bytes", res.Commit.BytesDone).
			Int64("deleted", res.Commit.DeletesDone).
			Dur("took", res.Duration).
			Msg("install finished")
		return res
	}

	if s.state != types.StatusCreated {
		return finish(types.StatusFailed, errors.Newf(errors.ErrInternal, "session already %s", s.state))
	}

	rec := transaction.NewRecord(s.spec, res.InstallID, res.RunID, start)
	layout, err := s.store.Begin(rec)
	if err != nil {
		return finish(types.StatusFailed, err)
	}
	res.UndoScriptPath = layout.UndoScript
	res.RedoLogPath = layout.RedoLog
	res.ArchivePath = layout.Archive

	w, err := script.Open(s.fs, layout.RedoLog, layout.UndoScript, logger)
	if err != nil {
		return s.failed(res, rec, err, finish)
	}
	defer func() { _ = w.Close() }()
	backup, err := archive.Open(s.fs, layout.Archive, s.spec.DestRoot, logger)
	if err != nil {
		return s.failed(res, rec, err, finish)
	}
	defer func() { _ = backup.Close() }()

	// simulate
	s.state = types.StatusSimulating
	logger.Info().Str("source", s.spec.SourceRoot).Str("dest", s.spec.DestRoot).Msg("simulating")
	sim := s.reconciler(logger, func(rel string, st *types.RunState) {
		tick.offer(simulateSnapshot(rel, st))
	})
	planned, plan, err := sim.Simulate(ctx)
	if planned != nil {
		res.Simulate = *planned
	}
	res.Plan = plan
	if err != nil {
		return s.failed(res, rec, err, finish)
	}

	res.Issues = s.issues(plan)
	if s.opts.Confirm != nil && !s.opts.Confirm(res.Issues, planned, plan) {
		logger.Info().Int("issues", len(res.Issues)).Msg("install declined")
		_ = w.Close()
		_ = backup.Close()
		if err := s.store.Discard(rec); err != nil {
			logger.Warn().Err(err).Msg("could not discard transaction")
		}
		res.UndoScriptPath, res.RedoLogPath, res.ArchivePath = "", "", ""
		return finish(types.StatusDeclined, nil)
	}

	// commit
	s.state = types.StatusCommitting
	logger.Info().
		Int64("bytes_planned", planned.BytesPlanned).
		Int64("deletes_planned", planned.DeletesPlanned).
		Int("matched", planned.FilesMatched).
		Msg("committing")
	com := s.reconciler(logger, func(rel string, st *types.RunState) {
		tick.offer(commitSnapshot(rel, st, planned))
	})
	done, plan, err := com.Commit(ctx, planned.Matched, reconcile.Output{Script: w, Backup: backup})
	if done != nil {
		res.Commit = *done
	}
	res.Plan = plan

	// the scripts are closed on every path so the undo script is complete
	closeErr := w.Close()
	if cerr := backup.Close(); closeErr == nil {
		closeErr = cerr
	}
	if backup.Entries() == 0 {
		res.ArchivePath = ""
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return s.failed(res, rec, err, finish)
	}

	rec.Size = res.Commit.BytesDone + res.Commit.BytesMatched
	if backup.Entries() == 0 {
		rec.Archive = ""
	}
	recordPath, err := s.store.Promote(rec)
	if err != nil {
		return s.failed(res, rec, err, finish)
	}
	res.RecordPath = recordPath

	res.Warnings = append(res.Warnings, s.installShortcuts(logger)...)
	return finish(types.StatusFinalized, nil)
}

func (s *Session) failed(res *types.Result, rec *transaction.Record, err error, finish func(types.Status, error) *types.Result) *types.Result {
	path, ferr := s.store.Fail(rec, err)
	if ferr != nil {
		s.logger.Warn().Err(ferr).Msg("could not record failure")
	}
	res.RecordPath = path
	return finish(types.StatusFailed, err)
}

// issues collects the plan warnings and a downgrade of the installed
// version.
func (s *Session) issues(plan types.Plan) []types.Issue {
	var out []types.Issue
	for _, d := range plan.Warnings() {
		out = append(out, types.Issue{Rel: d.Rel, Message: d.Warning})
	}
	if prev, _, err := s.store.Latest(s.spec.Meta.LUID); err == nil {
		if issue, ok := downgradeIssue(prev.Version, s.spec.Meta.Version); ok {
			out = append(out, issue)
		}
	}
	return out
}

// installShortcuts calls the shortcut collaborator once per configured
// executable and turns every failure into a warning.
func (s *Session) installShortcuts(logger zerolog.Logger) []string {
	if s.opts.Shortcuts == nil {
		return nil
	}
	var warnings []string
	for _, rel := range s.spec.Meta.ShortcutExeRelPaths {
		exe := filepath.Join(s.spec.DestRoot, filepath.FromSlash(rel))
		warning, err := s.opts.Shortcuts.InstallShortcut(exe, s.spec.DestRoot, s.spec.Meta)
		if err != nil {
			werr := errors.Wrapf(err, errors.ErrShortcut, "shortcut for %s", rel)
			logger.Warn().Err(werr).Msg("shortcut failed")
			warnings = append(warnings, werr.Error())
			continue
		}
		if warning != "" {
			logger.Warn().Str("exe", rel).Msg(warning)
			warnings = append(warnings, warning)
		}
	}
	return warnings
}
