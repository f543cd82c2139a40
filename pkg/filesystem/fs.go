// Package filesystem provides the filesystem abstraction used by the
// install engine, with an OS implementation and an afero adapter for tests.
package filesystem

import (
	"io"
	"io/fs"
	"time"
)

// FS is the set of filesystem operations the engine performs. ReadDir
// returns entries sorted by name.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Open(name string) (io.ReadCloser, error)
	// Create truncates or creates name for writing with perm.
	Create(name string, perm fs.FileMode) (io.WriteCloser, error)
	Mkdir(path string, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)
	Remove(name string) error
	RemoveAll(path string) error
	Rename(oldpath, newpath string) error
	Chmod(name string, mode fs.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error
}

// IsSymlink reports whether info describes a symbolic link.
func IsSymlink(info fs.FileInfo) bool {
	return info != nil && info.Mode()&fs.ModeSymlink != 0
}
