package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const linkMarker = "-> "

// BuildTree creates the described tree below root. Entries are created in
// sorted order so parents exist before their children.
func BuildTree(t *testing.T, root string, tree map[string]string) {
	t.Helper()

	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, rel := range keys {
		val := tree[rel]
		switch {
		case strings.HasSuffix(rel, "/"):
			CreateDir(t, root, strings.TrimSuffix(rel, "/"))
		case strings.HasPrefix(val, linkMarker):
			CreateSymlink(t, strings.TrimPrefix(val, linkMarker), filepath.Join(root, filepath.FromSlash(rel)))
		default:
			CreateFile(t, root, rel, val)
		}
	}
}

// TreeSnapshot walks root and returns its contents in BuildTree form.
// Directories that hold entries are implied by their children and only
// empty directories are listed. A missing root yields an empty map.
func TreeSnapshot(t *testing.T, root string) map[string]string {
	t.Helper()

	out := map[string]string{}
	if _, err := os.Lstat(root); os.IsNotExist(err) {
		return out
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			out[rel] = linkMarker + target
		case d.IsDir():
			entries, err := os.ReadDir(path)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				out[rel+"/"] = ""
			}
		default:
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to snapshot %s: %v", root, err)
	}
	return out
}
