// Package script writes the redo log and the undo script of one install
// transaction. Lines reach the file as soon as they are written so that a
// crash leaves a valid prefix.
package script

import (
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
)

// Shebang is the first line of every undo script.
const Shebang = "#!/bin/sh"

// Writer owns the redo log and the undo script.
type Writer struct {
	fs       filesystem.FS
	redoPath string
	undoPath string
	logger   zerolog.Logger

	redo io.WriteCloser
	undo io.WriteCloser

	rmdirs   []string
	restores []string
	closed   bool
}

// Open creates both files. The undo script starts with a shebang and is
// made executable.
func Open(fsys filesystem.FS, redoPath, undoPath string, logger zerolog.Logger) (*Writer, error) {
	redo, err := fsys.Create(redoPath, 0644)
	if err != nil {
		return nil, errors.IOError(err, "create", redoPath)
	}
	undo, err := fsys.Create(undoPath, 0755)
	if err != nil {
		_ = redo.Close()
		return nil, errors.IOError(err, "create", undoPath)
	}
	w := &Writer{
		fs:       fsys,
		redoPath: redoPath,
		undoPath: undoPath,
		logger:   logger,
		redo:     redo,
		undo:     undo,
	}
	if err := w.Undo(Shebang); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := fsys.Chmod(undoPath, 0755); err != nil {
		_ = w.Close()
		return nil, errors.IOError(err, "chmod", undoPath)
	}
	return w, nil
}

func (w *Writer) RedoPath() string { return w.redoPath }
func (w *Writer) UndoPath() string { return w.undoPath }

// Redo appends a forward action to the redo log.
func (w *Writer) Redo(line string) error {
	return w.write(w.redo, w.redoPath, line)
}

// Undo appends a line to the undo script.
func (w *Writer) Undo(line string) error {
	return w.write(w.undo, w.undoPath, line)
}

func (w *Writer) write(dst io.Writer, path, line string) error {
	if w.closed {
		return errors.Newf(errors.ErrInternal, "write to closed script %s", path)
	}
	if _, err := io.WriteString(dst, normalize(line)); err != nil {
		return errors.IOError(err, "write", path)
	}
	return nil
}

// normalize leaves exactly one trailing newline.
func normalize(line string) string {
	return strings.TrimRight(line, "\r\n") + "\n"
}

// DeferRmdir schedules an rmdir line for a directory the install created.
// These are written at Close, deepest first.
func (w *Writer) DeferRmdir(path string) {
	w.rmdirs = append(w.rmdirs, path)
}

// DeferRestore schedules a line that brings back a deleted entry. Restores
// run after every rmdir so a directory replaced by a file, or a file
// replaced by a directory, is emptied before it is rebuilt.
func (w *Writer) DeferRestore(line string) {
	w.restores = append(w.restores, line)
}

// Close writes the deferred rmdir lines longest path first, then the
// deferred restore lines in order, and closes both files. It is safe to
// call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	dirs := append([]string(nil), w.rmdirs...)
	sort.SliceStable(dirs, func(i, j int) bool {
		if len(dirs[i]) != len(dirs[j]) {
			return len(dirs[i]) > len(dirs[j])
		}
		return dirs[i] > dirs[j]
	})
	for _, d := range dirs {
		keep(w.Undo(RemoveDir(d)))
	}
	for _, line := range w.restores {
		keep(w.Undo(line))
	}

	w.closed = true
	if err := w.redo.Close(); err != nil {
		keep(errors.IOError(err, "close", w.redoPath))
	}
	if err := w.undo.Close(); err != nil {
		keep(errors.IOError(err, "close", w.undoPath))
	}

	w.logger.Debug().
		Int("rmdirs", len(dirs)).
		Int("restores", len(w.restores)).
		Str("undo", w.undoPath).
		Msg("scripts closed")
	return firstErr
}
