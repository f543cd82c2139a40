// Package archive keeps a ZIP copy of every destination file the install
// deletes or overwrites, so the undo script can put it back.
package archive

import (
	"archive/zip"
	"io"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
)

// Backup is the per-transaction removed.zip writer.
type Backup struct {
	fs       filesystem.FS
	destRoot string
	zipPath  string
	logger   zerolog.Logger

	file io.WriteCloser
	zw   *zip.Writer

	entries int
	used    map[string]struct{}
	closed  bool
}

// Open creates the archive at zipPath. Paths under destRoot are stored in
// the program/ namespace.
func Open(fsys filesystem.FS, zipPath, destRoot string, logger zerolog.Logger) (*Backup, error) {
	f, err := fsys.Create(zipPath, 0600)
	if err != nil {
		return nil, errors.IOError(err, "create", zipPath)
	}
	return &Backup{
		fs:       fsys,
		destRoot: destRoot,
		zipPath:  zipPath,
		logger:   logger,
		file:     f,
		zw:       zip.NewWriter(f),
		used:     make(map[string]struct{}),
	}, nil
}

// Path returns the archive location.
func (b *Backup) Path() string { return b.zipPath }

// Entries returns how many file entries have been written.
func (b *Backup) Entries() int { return b.entries }

// EntryName returns the archive entry used for p.
func (b *Backup) EntryName(p string) string {
	return EntryName(b.destRoot, p)
}

// Add archives the file or directory tree at p and returns the number of
// bytes it covers. With simulate set only the size is computed. Symlinks
// are skipped and count as zero bytes. The caller removes p afterwards.
func (b *Backup) Add(p string, simulate bool) (int64, error) {
	info, err := b.fs.Lstat(p)
	if err != nil {
		return 0, errors.IOError(err, "stat", p)
	}
	switch {
	case filesystem.IsSymlink(info):
		return 0, nil
	case info.IsDir():
		return b.addTree(p, simulate)
	default:
		if simulate {
			return info.Size(), nil
		}
		return info.Size(), b.addFile(p, b.EntryName(p), info)
	}
}

func (b *Backup) addTree(dir string, simulate bool) (int64, error) {
	entries, err := b.fs.ReadDir(dir)
	if err != nil {
		return 0, errors.IOError(err, "read dir", dir)
	}
	var total int64
	for _, e := range entries {
		n, err := b.Add(filepath.Join(dir, e.Name()), simulate)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (b *Backup) addFile(p, name string, info fs.FileInfo) error {
	if b.closed {
		return errors.Newf(errors.ErrInternal, "archive %s already closed", b.zipPath)
	}
	if _, dup := b.used[name]; dup {
		// the first copy is the oldest state, which is what undo restores
		b.logger.Debug().Str("entry", name).Msg("entry already archived")
		return nil
	}

	r, err := b.fs.Open(p)
	if err != nil {
		return errors.IOError(err, "open", p)
	}
	defer func() { _ = r.Close() }()

	if err := copyEntry(b.zw, name, info, r); err != nil {
		return errors.IOError(err, "archive", p).WithDetail("entry", name)
	}
	b.used[name] = struct{}{}
	b.entries++
	b.logger.Trace().Str("path", p).Str("entry", name).Int64("bytes", info.Size()).Msg("archived")
	return nil
}

// Close finishes the archive and deletes it when nothing was written.
func (b *Backup) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.zw.Close()
	if cerr := b.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.IOError(err, "close", b.zipPath)
	}

	if b.entries == 0 {
		if err := b.fs.Remove(b.zipPath); err != nil {
			return errors.IOError(err, "remove", b.zipPath)
		}
		b.logger.Debug().Str("path", b.zipPath).Msg("removed empty backup archive")
	}
	return nil
}

// copyEntry streams r into a new deflated entry keeping the file's mode and
// modification time.
func copyEntry(zw *zip.Writer, name string, info fs.FileInfo, r io.Reader) error {
	h := &zip.FileHeader{Name: path.Clean(name), Method: zip.Deflate}
	h.SetMode(info.Mode().Perm())
	h.Modified = info.ModTime()
	w, err := zw.CreateHeader(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}
