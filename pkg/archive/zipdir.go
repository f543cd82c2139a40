package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/paths"
)

// ZipDirectory writes every regular file below dir into a new archive at
// zipPath, named relative to dir. Symlinks are skipped. It returns the
// number of entries written.
func ZipDirectory(fsys filesystem.FS, dir, zipPath string) (int, error) {
	out, err := fsys.Create(zipPath, 0644)
	if err != nil {
		return 0, errors.IOError(err, "create", zipPath)
	}
	zw := zip.NewWriter(out)

	n, walkErr := zipTree(fsys, zw, dir, "")

	err = zw.Close()
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if walkErr != nil {
		return n, walkErr
	}
	if err != nil {
		return n, errors.IOError(err, "close", zipPath)
	}
	return n, nil
}

func zipTree(fsys filesystem.FS, zw *zip.Writer, dir, prefix string) (int, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return 0, errors.IOError(err, "read dir", dir)
	}
	count := 0
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		info, err := fsys.Lstat(p)
		if err != nil {
			return count, errors.IOError(err, "stat", p)
		}
		name := e.Name()
		if prefix != "" {
			name = prefix + "/" + name
		}
		switch {
		case filesystem.IsSymlink(info):
			continue
		case info.IsDir():
			n, err := zipTree(fsys, zw, p, name)
			count += n
			if err != nil {
				return count, err
			}
		default:
			if err := zipOne(fsys, zw, p, SanitizeName(name), info); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func zipOne(fsys filesystem.FS, zw *zip.Writer, p, name string, info fs.FileInfo) error {
	r, err := fsys.Open(p)
	if err != nil {
		return errors.IOError(err, "open", p)
	}
	defer func() { _ = r.Close() }()
	if err := copyEntry(zw, name, info, r); err != nil {
		return errors.IOError(err, "archive", p)
	}
	return nil
}

// Extract unpacks a package archive into a fresh directory below parent and
// returns the package root: the single top-level directory when the archive
// has exactly one, else the extraction directory itself. On any failure the
// partial tree is removed and ErrArchiveUnusable is returned.
//
// Entries never reach outside the extraction directory: names are
// sanitized, symlink entries must point inside it, and nothing is written
// through a symlink.
func Extract(fsys filesystem.FS, zipPath, parent string) (root string, err error) {
	zr, closeZip, err := OpenReader(fsys, zipPath)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrArchiveUnusable, "cannot open archive %s", zipPath).
			WithDetail("path", zipPath)
	}
	defer func() { _ = closeZip() }()

	tmp := filepath.Join(parent, "hierosoft-pkg-"+uuid.NewString())
	if err := fsys.Mkdir(tmp, 0700); err != nil {
		return "", errors.IOError(err, "mkdir", tmp)
	}
	defer func() {
		if err != nil {
			_ = fsys.RemoveAll(tmp)
		}
	}()

	tops := map[string]bool{}
	for _, f := range zr.File {
		if err := extractOne(fsys, f, tmp); err != nil {
			return "", errors.Wrapf(err, errors.ErrArchiveUnusable, "cannot extract %s from %s", f.Name, zipPath).
				WithDetail("path", zipPath).
				WithDetail("entry", f.Name)
		}
		top := strings.SplitN(strings.TrimLeft(filepath.ToSlash(f.Name), "/"), "/", 2)
		tops[top[0]] = len(top) > 1 || f.FileInfo().IsDir()
	}

	if len(tops) == 1 {
		for name, isDir := range tops {
			if isDir {
				return filepath.Join(tmp, name), nil
			}
		}
	}
	return tmp, nil
}

// OpenReader opens zipPath for random access, reading it into memory when
// the file system does not offer ReadAt. The returned func closes it.
func OpenReader(fsys filesystem.FS, zipPath string) (*zip.Reader, func() error, error) {
	info, err := fsys.Stat(zipPath)
	if err != nil {
		return nil, nil, err
	}
	rc, err := fsys.Open(zipPath)
	if err != nil {
		return nil, nil, err
	}
	ra, ok := rc.(io.ReaderAt)
	if !ok {
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, nil, err
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		return zr, func() error { return nil }, err
	}
	zr, err := zip.NewReader(ra, info.Size())
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return zr, rc.Close, nil
}

func extractOne(fsys filesystem.FS, f *zip.File, dest string) error {
	name := SanitizeName(f.Name)
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !paths.IsWithin(dest, target) || target == filepath.Clean(dest) {
		return errors.Newf(errors.ErrArchiveUnusable, "entry %s escapes the extraction directory", f.Name)
	}
	if err := noLinkBelow(fsys, dest, target); err != nil {
		return err
	}

	mode := f.Mode()
	switch {
	case mode.IsDir():
		return fsys.MkdirAll(target, 0755)
	case mode&fs.ModeSymlink != 0:
		link, err := readEntry(f)
		if err != nil {
			return err
		}
		resolved := string(link)
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(target), resolved)
		}
		if !paths.IsWithin(dest, resolved) {
			return errors.Newf(errors.ErrArchiveUnusable, "symlink %s points outside the extraction directory", f.Name).
				WithDetail("target", string(link))
		}
		if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return fsys.Symlink(string(link), target)
	}

	if err := fsys.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	out, err := fsys.Create(target, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !f.Modified.IsZero() {
		_ = fsys.Chtimes(target, f.Modified, f.Modified)
	}
	return nil
}

// noLinkBelow fails when target or any directory between dest and target
// already exists as a symlink.
func noLinkBelow(fsys filesystem.FS, dest, target string) error {
	rel, err := filepath.Rel(dest, target)
	if err != nil {
		return err
	}
	p := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		p = filepath.Join(p, part)
		info, err := fsys.Lstat(p)
		if err != nil {
			// nothing exists below a missing component
			return nil
		}
		if filesystem.IsSymlink(info) {
			return errors.Newf(errors.ErrArchiveUnusable, "entry would be written through symlink %s", p).
				WithDetail("path", p)
		}
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
