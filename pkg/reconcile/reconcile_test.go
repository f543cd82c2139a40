package reconcile

import (
	"archive/zip"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hierosoft/hierosoft/pkg/archive"
	"github.com/Hierosoft/hierosoft/pkg/compare"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/script"
	"github.com/Hierosoft/hierosoft/pkg/testutil"
	"github.com/Hierosoft/hierosoft/pkg/types"
	"github.com/Hierosoft/hierosoft/pkg/undo"
)

type fixture struct {
	src, dst, tx string
	spec         types.InstallSpec
	follow       bool
}

type outcome struct {
	sim      *types.RunState
	simPlan  types.Plan
	com      *types.RunState
	comPlan  types.Plan
	err      error
	redo     string
	undo     string
	zipPath  string
	zipNames []string
}

// newFixture builds the source tree and, when dst is not nil, the
// destination tree. A nil dst leaves the destination root missing.
func newFixture(t *testing.T, src, dst map[string]string) *fixture {
	t.Helper()
	f := &fixture{
		src: filepath.Join(t.TempDir(), "pkg"),
		dst: filepath.Join(t.TempDir(), "app"),
		tx:  t.TempDir(),
	}
	testutil.CreateDir(t, filepath.Dir(f.src), "pkg")
	testutil.BuildTree(t, f.src, src)
	if dst != nil {
		testutil.CreateDir(t, filepath.Dir(f.dst), "app")
		testutil.BuildTree(t, f.dst, dst)
	}
	f.spec = types.InstallSpec{
		SourceRoot: f.src,
		DestRoot:   f.dst,
		Keeps:      types.NewPathSet(),
		Replaces:   types.NewPathSet(),
		Meta:       types.PackageMeta{LUID: "app"},
	}
	return f
}

func (f *fixture) reconciler() *Reconciler {
	fsys := filesystem.NewOS()
	return New(f.spec, Options{
		FS:             fsys,
		Comparator:     compare.New(fsys, zerolog.Nop()),
		Logger:         zerolog.Nop(),
		FollowSymlinks: f.follow,
	})
}

// install runs both passes against fresh scripts and a fresh archive.
func (f *fixture) install(t *testing.T, ctx context.Context) outcome {
	t.Helper()
	fsys := filesystem.NewOS()
	r := f.reconciler()

	var o outcome
	o.sim, o.simPlan, o.err = r.Simulate(ctx)
	if o.err != nil {
		return o
	}

	redoPath := filepath.Join(f.tx, "tx.log")
	undoPath := filepath.Join(f.tx, "tx-uninstall.sh")
	o.zipPath = filepath.Join(f.tx, "removed.zip")

	w, err := script.Open(fsys, redoPath, undoPath, zerolog.Nop())
	require.NoError(t, err)
	b, err := archive.Open(fsys, o.zipPath, f.dst, zerolog.Nop())
	require.NoError(t, err)

	o.com, o.comPlan, o.err = r.Commit(ctx, o.sim.Matched, Output{Script: w, Backup: b})
	require.NoError(t, w.Close())
	require.NoError(t, b.Close())

	o.redo = testutil.ReadFile(t, redoPath)
	o.undo = testutil.ReadFile(t, undoPath)
	if testutil.FileExists(t, o.zipPath) {
		zr, err := zip.OpenReader(o.zipPath)
		require.NoError(t, err)
		for _, zf := range zr.File {
			o.zipNames = append(o.zipNames, zf.Name)
		}
		require.NoError(t, zr.Close())
	}
	return o
}

func (f *fixture) undoAll(t *testing.T) {
	t.Helper()
	report, err := undo.New(undo.Options{Logger: zerolog.Nop()}).Run(context.Background(), filepath.Join(f.tx, "tx-uninstall.sh"))
	require.NoError(t, err)
	require.NoError(t, report.Err())
}

func modes(p types.Plan) []string {
	out := make([]string, 0, len(p))
	for _, d := range p {
		out = append(out, string(d.Mode)+" "+d.Rel)
	}
	return out
}

func find(t *testing.T, p types.Plan, rel string, mode types.Mode) types.EntryDecision {
	t.Helper()
	for _, d := range p {
		if d.Rel == rel && d.Mode == mode {
			return d
		}
	}
	t.Fatalf("no %s decision for %q in %v", mode, rel, modes(p))
	return types.EntryDecision{}
}

func assertParity(t *testing.T, o outcome) {
	t.Helper()
	assert.Equal(t, o.sim.BytesPlanned, o.com.BytesDone, "bytes")
	assert.Equal(t, o.sim.DeletesPlanned, o.com.DeletesDone, "deleted bytes")
	assert.Equal(t, o.sim.FilesPlanned, o.com.FilesAdded, "files")
	assert.Equal(t, o.sim.DeleteFilesPlanned, o.com.DeleteFilesDone, "deleted files")
	assert.Equal(t, modes(o.simPlan), modes(o.comPlan))
}

func TestFreshInstall(t *testing.T) {
	save := `{"slot":1}`
	f := newFixture(t, map[string]string{
		"app.bin":        "0123456789",
		"data/save.json": save,
	}, nil)

	o := f.install(t, context.Background())
	require.NoError(t, o.err)

	assert.Equal(t, int64(10+len(save)), o.sim.BytesPlanned)
	assert.Zero(t, o.sim.DeletesPlanned)
	assertParity(t, o)
	assert.Equal(t, []string{"recurse ", "add app.bin", "recurse data", "add data/save.json"}, modes(o.comPlan))

	assert.Equal(t, map[string]string{
		"app.bin":        "0123456789",
		"data/save.json": save,
	}, testutil.TreeSnapshot(t, f.dst))
	assert.Contains(t, o.redo, script.CopyFile(filepath.Join(f.src, "app.bin"), filepath.Join(f.dst, "app.bin")))
	assert.Contains(t, o.undo, script.Remove(filepath.Join(f.dst, "app.bin")))
	assert.Contains(t, o.undo, script.RemoveDir(filepath.Join(f.dst, "data")))
	assert.Contains(t, o.undo, script.RemoveDir(f.dst))
	assert.NoFileExists(t, o.zipPath, "an empty archive is removed")

	f.undoAll(t)
	testutil.AssertNoFile(t, f.dst)
}

func TestKeptFileIsNotOverwritten(t *testing.T) {
	f := newFixture(t,
		map[string]string{"config.ini": "defaults", "app.bin": "v2"},
		map[string]string{"config.ini": "user edited", "app.bin": "v1"},
	)
	f.spec.Keeps = types.NewPathSet("config.ini")

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	kept := find(t, o.comPlan, "config.ini", types.ModeSkip)
	assert.Equal(t, types.ReasonKept, kept.Reason)
	assert.Contains(t, kept.Warning, "will not be overwritten")
	testutil.AssertFileContent(t, filepath.Join(f.dst, "config.ini"), "user edited")
	testutil.AssertFileContent(t, filepath.Join(f.dst, "app.bin"), "v2")

	assert.Contains(t, o.redo, "# "+script.CopyFile(filepath.Join(f.src, "config.ini"), filepath.Join(f.dst, "config.ini"))+"  # kept")
	assert.Contains(t, o.undo, "# "+script.Remove(filepath.Join(f.dst, "config.ini"))+"  # kept")
	assert.Len(t, o.simPlan.Warnings(), 1)
}

func TestReplacedDirectoryLosesExtras(t *testing.T) {
	f := newFixture(t,
		map[string]string{"games/core.dat": "core", "saves/readme": "r"},
		map[string]string{
			"games/core.dat":      "old core",
			"games/extra_mod":     "mod",
			"games/mods/deep.lua": "deep",
			"saves/slot1":         "mine",
		},
	)
	f.spec.Replaces = types.NewPathSet("games")
	before := testutil.TreeSnapshot(t, f.dst)

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	assert.Equal(t, map[string]string{
		"games/core.dat": "core",
		"saves/readme":   "r",
		"saves/slot1":    "mine",
	}, testutil.TreeSnapshot(t, f.dst))

	assert.Equal(t, int64(len("mod")+len("deep")), o.sim.DeletesPlanned)
	assert.Equal(t, types.ReasonReplaced, find(t, o.comPlan, "games/extra_mod", types.ModeDelete).Reason)
	assert.Equal(t, types.KindDir, find(t, o.comPlan, "games/mods", types.ModeDelete).Kind)

	assert.Contains(t, o.zipNames, "program/games/extra_mod")
	assert.Contains(t, o.zipNames, "program/games/mods/deep.lua")
	assert.Contains(t, o.zipNames, "program/games/core.dat", "overwritten files are archived too")
	extra := filepath.Join(f.dst, "games", "extra_mod")
	assert.Contains(t, o.undo, script.RestoreFile(o.zipPath, "program/games/extra_mod", extra))

	f.undoAll(t)
	assert.Equal(t, before, testutil.TreeSnapshot(t, f.dst))
}

func TestReplacesEntryMissingFromSource(t *testing.T) {
	f := newFixture(t,
		map[string]string{"bin/app": "app"},
		map[string]string{"bin/app": "app", "bin/legacy.so": "old", "plugins/user.so": "mine"},
	)
	f.spec.Replaces = types.NewPathSet("bin/legacy.so", "obsolete")

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	assert.Equal(t, map[string]string{
		"bin/app":         "app",
		"plugins/user.so": "mine",
	}, testutil.TreeSnapshot(t, f.dst))
}

func TestReplacedDirectoryHonoursKeeps(t *testing.T) {
	f := newFixture(t,
		map[string]string{"other": "o"},
		map[string]string{"data/cache.bin": "c", "data/saves/slot1": "mine"},
	)
	f.spec.Replaces = types.NewPathSet("data")
	f.spec.Keeps = types.NewPathSet("data/saves")

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	assert.Equal(t, map[string]string{
		"other":            "o",
		"data/saves/slot1": "mine",
	}, testutil.TreeSnapshot(t, f.dst))
	assert.Equal(t, types.ReasonKept, find(t, o.comPlan, "data/saves", types.ModeSkip).Reason)
}

func TestIdenticalFilesAreHidden(t *testing.T) {
	f := newFixture(t,
		map[string]string{"readme.txt": "same bytes"},
		map[string]string{"readme.txt": "same bytes"},
	)

	o := f.install(t, context.Background())
	require.NoError(t, o.err)

	assert.True(t, o.sim.Matched.Has("readme.txt"))
	assert.Equal(t, 1, o.sim.FilesMatched)
	d := find(t, o.comPlan, "readme.txt", types.ModeSkip)
	assert.True(t, d.Hide)
	assert.Equal(t, types.ReasonIdentical, d.Reason)
	assert.NotContains(t, o.redo, "readme.txt")
	assert.NotContains(t, o.undo, "readme.txt")
	assert.Empty(t, o.comPlan.Visible())
}

func TestSecondRunChangesNothing(t *testing.T) {
	src := map[string]string{
		"app.bin":      "binary",
		"lib/a.so":     "a",
		"lib/current":  "-> a.so",
		"share/empty/": "",
	}
	f := newFixture(t, src, nil)

	first := f.install(t, context.Background())
	require.NoError(t, first.err)
	after := testutil.TreeSnapshot(t, f.dst)

	f.tx = t.TempDir()
	second := f.install(t, context.Background())
	require.NoError(t, second.err)

	assert.Zero(t, second.com.BytesDone)
	assert.Zero(t, second.com.DeletesDone)
	assert.Zero(t, second.com.FilesAdded)
	assert.Equal(t, 2, second.com.FilesMatched)
	assert.Empty(t, second.comPlan.Visible())
	assert.Equal(t, after, testutil.TreeSnapshot(t, f.dst))
}

func TestTypeConflicts(t *testing.T) {
	f := newFixture(t,
		map[string]string{"data/a": "a", "tool": "now a file"},
		map[string]string{"data": "was a file", "tool/old": "was a dir"},
	)
	before := testutil.TreeSnapshot(t, f.dst)

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	assert.Equal(t, []string{
		"delete data", "recurse data", "add data/a",
		"delete tool", "add tool",
	}, modes(o.comPlan.Visible()))
	assert.Equal(t, types.ReasonTypeConflict, find(t, o.comPlan, "data", types.ModeDelete).Reason)
	assert.Equal(t, map[string]string{"data/a": "a", "tool": "now a file"}, testutil.TreeSnapshot(t, f.dst))

	f.undoAll(t)
	assert.Equal(t, before, testutil.TreeSnapshot(t, f.dst))
}

func TestTypeConflictSparesKeptEntries(t *testing.T) {
	f := newFixture(t,
		map[string]string{"data": "now a file", "app.bin": "v2"},
		map[string]string{"data/save.json": "user save", "data/cache": "c", "app.bin": "v1"},
	)
	f.spec.Keeps = types.NewPathSet("data/save.json")

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	assert.Equal(t, []string{"add app.bin", "skip data"}, modes(o.comPlan.Visible()))
	kept := find(t, o.comPlan, "data", types.ModeSkip)
	assert.Equal(t, types.ReasonKept, kept.Reason)
	assert.Contains(t, kept.Warning, "will not be overwritten")
	testutil.AssertFileContent(t, filepath.Join(f.dst, "data", "save.json"), "user save")
	testutil.AssertFileContent(t, filepath.Join(f.dst, "data", "cache"), "c")
	testutil.AssertFileContent(t, filepath.Join(f.dst, "app.bin"), "v2")
	assert.Empty(t, o.zipNames)
}

func TestSymlinks(t *testing.T) {
	testutil.SkipOnWindows(t)
	f := newFixture(t,
		map[string]string{
			"lib/a.so":     "a",
			"lib/b.so":     "b",
			"lib/current":  "-> b.so",
			"lib/same":     "-> a.so",
			"lib/mismatch": "real file",
		},
		map[string]string{
			"lib/a.so":     "a",
			"lib/current":  "-> a.so",
			"lib/same":     "-> a.so",
			"lib/mismatch": "-> a.so",
		},
	)
	before := testutil.TreeSnapshot(t, f.dst)

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)

	mismatch := find(t, o.comPlan, "lib/mismatch", types.ModeSkip)
	assert.Equal(t, types.ReasonSymlinkMismatch, mismatch.Reason)
	assert.NotEmpty(t, mismatch.Warning)
	assert.Equal(t, types.ReasonChanged, find(t, o.comPlan, "lib/current", types.ModeDelete).Reason)
	assert.True(t, find(t, o.comPlan, "lib/same", types.ModeSkip).Hide)

	after := testutil.TreeSnapshot(t, f.dst)
	assert.Equal(t, "-> b.so", after["lib/current"])
	assert.Equal(t, "-> a.so", after["lib/mismatch"])

	f.undoAll(t)
	assert.Equal(t, before, testutil.TreeSnapshot(t, f.dst))
}

func TestFollowedSymlinkMustStayUnderRoot(t *testing.T) {
	testutil.SkipOnWindows(t)
	outside := t.TempDir()
	testutil.CreateFile(t, outside, "secret", "s")

	f := newFixture(t, map[string]string{"a.txt": "a", "z": "-> " + filepath.Join(outside, "secret")}, map[string]string{})
	f.follow = true

	o := f.install(t, context.Background())
	require.Error(t, o.err)
	assert.True(t, errors.IsErrorCode(o.err, errors.ErrNotUnderRoot))
	last := o.simPlan[len(o.simPlan)-1]
	assert.Equal(t, types.ModeError, last.Mode)
	assert.Equal(t, "z", last.Rel)
	assert.Nil(t, o.com, "commit never starts after a failed simulate")
}

func TestFollowedSymlinkIsCopied(t *testing.T) {
	testutil.SkipOnWindows(t)
	f := newFixture(t, map[string]string{"real.txt": "content", "alias.txt": "-> real.txt"}, map[string]string{})
	f.follow = true

	o := f.install(t, context.Background())
	require.NoError(t, o.err)
	assertParity(t, o)
	assert.Equal(t, map[string]string{"real.txt": "content", "alias.txt": "content"}, testutil.TreeSnapshot(t, f.dst))
}

func TestCancelledBeforeFirstEntry(t *testing.T) {
	f := newFixture(t, map[string]string{"a": "a"}, map[string]string{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.reconciler().Simulate(ctx)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
}

func TestCancelledCommitLeavesValidUndo(t *testing.T) {
	f := newFixture(t, map[string]string{"a": "a", "b": "b", "c": "c"}, map[string]string{})
	r := New(f.spec, Options{
		FS:         filesystem.NewOS(),
		Comparator: compare.New(filesystem.NewOS(), zerolog.Nop()),
		Logger:     zerolog.Nop(),
	})
	sim, _, err := r.Simulate(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.opts.Progress = func(rel string, _ *types.RunState) {
		if rel == "a" {
			cancel()
		}
	}

	fsys := filesystem.NewOS()
	w, err := script.Open(fsys, filepath.Join(f.tx, "tx.log"), filepath.Join(f.tx, "tx-uninstall.sh"), zerolog.Nop())
	require.NoError(t, err)
	b, err := archive.Open(fsys, filepath.Join(f.tx, "removed.zip"), f.dst, zerolog.Nop())
	require.NoError(t, err)

	_, plan, err := r.Commit(ctx, sim.Matched, Output{Script: w, Backup: b})
	require.NoError(t, w.Close())
	require.NoError(t, b.Close())

	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
	assert.Equal(t, []string{"add a"}, modes(plan))
	assert.Equal(t, map[string]string{"a": "a"}, testutil.TreeSnapshot(t, f.dst))

	f.undoAll(t)
	assert.Equal(t, map[string]string{}, testutil.TreeSnapshot(t, f.dst))
}

func TestCommitNeedsOutput(t *testing.T) {
	f := newFixture(t, map[string]string{"a": "a"}, nil)
	_, _, err := f.reconciler().Commit(context.Background(), nil, Output{})
	assert.True(t, errors.IsErrorCode(err, errors.ErrInternal))
}

func TestSourceMustBeDirectory(t *testing.T) {
	f := newFixture(t, map[string]string{}, nil)
	f.spec.SourceRoot = testutil.CreateFile(t, t.TempDir(), "pkg.zip", "zip")

	_, _, err := f.reconciler().Simulate(context.Background())
	assert.True(t, errors.IsErrorCode(err, errors.ErrIO))
}

func TestDecide(t *testing.T) {
	f := newFixture(t,
		map[string]string{"new": "n", "same": "s", "changed": "v2", "kept": "k", "dir/x": "x"},
		map[string]string{"same": "s", "changed": "v1", "kept": "mine", "dir/": ""},
	)
	f.spec.Keeps = types.NewPathSet("kept")
	r := f.reconciler()

	tests := []struct {
		rel    string
		mode   types.Mode
		reason string
	}{
		{"new", types.ModeAdd, types.ReasonNew},
		{"same", types.ModeSkip, types.ReasonIdentical},
		{"changed", types.ModeAdd, types.ReasonChanged},
		{"kept", types.ModeSkip, types.ReasonKept},
		{"dir", types.ModeRecurse, ""},
		{"dir/x", types.ModeAdd, types.ReasonNew},
		{"./dir/../new", types.ModeAdd, types.ReasonNew},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			d := r.Decide(tt.rel)
			assert.Equal(t, tt.mode, d.Mode, d.String())
			assert.Equal(t, tt.reason, d.Reason)
		})
	}

	missing := r.Decide("nope")
	assert.Equal(t, types.ModeError, missing.Mode)
	assert.True(t, errors.IsErrorCode(missing.Err, errors.ErrIO))

	// Decide has no side effects
	assert.Equal(t, "v1", testutil.ReadFile(t, filepath.Join(f.dst, "changed")))
	assert.True(t, strings.HasSuffix(r.Decide("changed").Dest, "changed"))
}
