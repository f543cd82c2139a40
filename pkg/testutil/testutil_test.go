package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildTreeAndSnapshot(t *testing.T) {
	root := t.TempDir()
	tree := map[string]string{
		"a.txt":       "A",
		"sub/b.txt":   "B",
		"empty/":      "",
		"sub/link":    "-> b.txt",
		"deep/x/y/z":  "Z",
		"deep/x/keep": "K",
	}

	BuildTree(t, root, tree)

	assert.Equal(t, tree, TreeSnapshot(t, root))
	assert.True(t, FileExists(t, filepath.Join(root, "a.txt")))
	assert.True(t, DirExists(t, filepath.Join(root, "empty")))
	assert.True(t, SymlinkExists(t, filepath.Join(root, "sub", "link")))
	AssertFileContent(t, filepath.Join(root, "deep", "x", "y", "z"), "Z")
	AssertNoFile(t, filepath.Join(root, "nope"))
}

func TestTreeSnapshotMissingRoot(t *testing.T) {
	assert.Empty(t, TreeSnapshot(t, filepath.Join(t.TempDir(), "missing")))
}
