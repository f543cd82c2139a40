package undo

import (
	"archive/zip"
	stderrors "errors"
	"io/fs"
	"syscall"

	"github.com/Hierosoft/hierosoft/pkg/archive"
	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
)

// archives keeps the backup archives of one run open, indexed by entry
// name, so each is read once however many lines restore from it.
type archives struct {
	fs      filesystem.FS
	indexes map[string]map[string]*zip.File
	closers []func() error
}

func newArchives(fsys filesystem.FS) *archives {
	return &archives{fs: fsys, indexes: map[string]map[string]*zip.File{}}
}

func (a *archives) get(zipPath string) (map[string]*zip.File, error) {
	if idx, ok := a.indexes[zipPath]; ok {
		return idx, nil
	}
	zr, closeFn, err := archive.OpenReader(a.fs, zipPath)
	if err != nil {
		if isNotExist(err) {
			return nil, errors.IOError(err, "open", zipPath)
		}
		return nil, errors.Wrap(err, errors.ErrArchiveUnusable, "cannot read backup archive").
			WithDetail("archive", zipPath)
	}
	a.closers = append(a.closers, closeFn)
	idx := make(map[string]*zip.File, len(zr.File))
	for _, zf := range zr.File {
		if _, dup := idx[zf.Name]; !dup {
			idx[zf.Name] = zf
		}
	}
	a.indexes[zipPath] = idx
	return idx, nil
}

func (a *archives) close() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR)
}
