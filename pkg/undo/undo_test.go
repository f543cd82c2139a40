package undo

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hierosoft/hierosoft/pkg/archive"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/script"
	"github.com/Hierosoft/hierosoft/pkg/testutil"
)

func runScript(t *testing.T, opts Options, lines ...string) *Report {
	t.Helper()
	report, err := New(opts).RunReader(context.Background(), "test.sh", strings.NewReader(strings.Join(lines, "\n")+"\n"))
	require.NoError(t, err)
	return report
}

func TestSplitRedirect(t *testing.T) {
	tests := []struct {
		line, body, target string
		ok                 bool
	}{
		{"unzip -p a.zip e > /d", "unzip -p a.zip e ", " /d", true},
		{"rm -f 'a>b'", "rm -f 'a>b'", "", false},
		{`rm -f a\>b`, `rm -f a\>b`, "", false},
		{`rm -f "a>b"`, `rm -f "a>b"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			body, target, ok := splitRedirect(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestRunCommands(t *testing.T) {
	testutil.SkipOnWindows(t)
	root := t.TempDir()
	testutil.BuildTree(t, root, map[string]string{
		"added.txt":     "new",
		"tree/a":        "a",
		"tree/sub/b":    "b",
		"empty/":        "",
		"keep/src.txt":  "copy me",
		"link":          "-> added.txt",
		"name with 'q'": "quoted",
		"relink":        "-> nowhere",
	})
	p := func(rel string) string { return filepath.Join(root, rel) }

	report := runScript(t, Options{Logger: zerolog.Nop()},
		script.Shebang,
		script.Remove(p("added.txt")),
		script.Remove(p("missing.txt")),
		script.RemoveTree(p("tree")),
		script.RemoveDir(p("empty")),
		script.MakeDirAll(p("made/deep")),
		script.MakeDir(p("made/flat")),
		script.ForceSymlink("keep/src.txt", p("relink")),
		script.Symlink("keep", p("newlink")),
		script.CopyFile(p("keep/src.txt"), p("made/copy.txt")),
		script.Remove(p("name with 'q'")),
		script.Skipped(script.Remove(p("link")), "kept"),
	)

	require.NoError(t, report.Err())
	assert.Equal(t, 10, report.Executed)
	assert.Equal(t, 2, report.Comments)

	assert.Equal(t, map[string]string{
		"keep/src.txt":  "copy me",
		"link":          "-> added.txt",
		"relink":        "-> keep/src.txt",
		"newlink":       "-> keep",
		"made/deep/":    "",
		"made/flat/":    "",
		"made/copy.txt": "copy me",
	}, testutil.TreeSnapshot(t, root))
}

func TestRunRestoresFromArchive(t *testing.T) {
	fsys := filesystem.NewOS()
	root := t.TempDir()
	tx := t.TempDir()
	testutil.BuildTree(t, root, map[string]string{
		"games/extra_mod": "mod data",
		"config.ini":      "user",
	})

	zipPath := filepath.Join(tx, "removed.zip")
	b, err := archive.Open(fsys, zipPath, root, zerolog.Nop())
	require.NoError(t, err)
	_, err = b.Add(filepath.Join(root, "games"), false)
	require.NoError(t, err)
	_, err = b.Add(filepath.Join(root, "config.ini"), false)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, fsys.RemoveAll(filepath.Join(root, "games")))
	testutil.CreateFile(t, root, "config.ini", "overwritten")

	extra := filepath.Join(root, "games", "extra_mod")
	report := runScript(t, Options{FS: fsys, Logger: zerolog.Nop()},
		script.RestoreFile(zipPath, b.EntryName(filepath.Join(root, "config.ini")), filepath.Join(root, "config.ini")),
		script.MakeDirAll(filepath.Join(root, "games")),
		script.RestoreFile(zipPath, b.EntryName(extra), extra),
	)

	require.NoError(t, report.Err())
	assert.Equal(t, map[string]string{
		"games/extra_mod": "mod data",
		"config.ini":      "user",
	}, testutil.TreeSnapshot(t, root))
}

// countingFS counts how often each path is opened.
type countingFS struct {
	filesystem.FS
	opens map[string]int
}

func (c *countingFS) Open(name string) (io.ReadCloser, error) {
	c.opens[name]++
	return c.FS.Open(name)
}

func TestRunReadsEachArchiveOnce(t *testing.T) {
	fsys := &countingFS{FS: filesystem.NewOS(), opens: map[string]int{}}
	root := t.TempDir()
	names := []string{"shot [1].png", "what?.txt", "star*", "plain.txt"}
	files := map[string]string{}
	for _, n := range names {
		files[n] = "content of " + n
	}
	testutil.BuildTree(t, root, files)

	zipPath := filepath.Join(t.TempDir(), "removed.zip")
	b, err := archive.Open(fsys, zipPath, root, zerolog.Nop())
	require.NoError(t, err)
	var lines []string
	for _, n := range names {
		p := filepath.Join(root, n)
		_, err := b.Add(p, false)
		require.NoError(t, err)
		lines = append(lines, script.RestoreFile(zipPath, b.EntryName(p), p))
	}
	require.NoError(t, b.Close())
	for _, n := range names {
		testutil.CreateFile(t, root, n, "overwritten")
	}
	fsys.opens = map[string]int{}

	report := runScript(t, Options{FS: fsys, Logger: zerolog.Nop()}, lines...)
	require.NoError(t, report.Err())
	assert.Equal(t, len(names), report.Executed)
	assert.Equal(t, files, testutil.TreeSnapshot(t, root))
	assert.Equal(t, 1, fsys.opens[zipPath])
}

func TestRunReportsFailuresAndContinues(t *testing.T) {
	root := t.TempDir()
	testutil.BuildTree(t, root, map[string]string{"full/user.sav": "x"})

	report := runScript(t, Options{Logger: zerolog.Nop()},
		script.RemoveDir(filepath.Join(root, "full")),
		"chmod 777 /etc",
		script.MakeDir(filepath.Join(root, "after")),
	)

	assert.Equal(t, 1, report.Executed)
	failed := report.Failures()
	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].Line)
	assert.Equal(t, 2, failed[1].Line)
	assert.True(t, errors.IsErrorCode(report.Err(), errors.ErrUndo))
	assert.True(t, testutil.DirExists(t, filepath.Join(root, "after")))
	assert.True(t, testutil.FileExists(t, filepath.Join(root, "full", "user.sav")))
}

func TestRunStopOnError(t *testing.T) {
	root := t.TempDir()
	report := runScript(t, Options{Logger: zerolog.Nop(), StopOnError: true},
		"bogus",
		script.MakeDir(filepath.Join(root, "never")),
	)
	assert.Len(t, report.Results, 1)
	assert.False(t, testutil.DirExists(t, filepath.Join(root, "never")))
}

func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	f := testutil.CreateFile(t, root, "a.txt", "a")

	report := runScript(t, Options{Logger: zerolog.Nop(), DryRun: true}, script.Remove(f))
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Executed)
	assert.Contains(t, report.Results[0].Message, "would run")
	testutil.AssertFileContent(t, f, "a")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{Logger: zerolog.Nop()}).RunReader(ctx, "x.sh", strings.NewReader("rm -f /nonexistent\n"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrCancelled))
}

func TestRunMissingScript(t *testing.T) {
	_, err := New(Options{Logger: zerolog.Nop()}).Run(context.Background(), filepath.Join(t.TempDir(), "none.sh"))
	assert.True(t, errors.IsErrorCode(err, errors.ErrIO))
}
