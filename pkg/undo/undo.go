// Package undo executes the undo scripts written by an install without a
// shell. Only the commands the script writer emits are understood; comment
// lines and blank lines are ignored.
package undo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/script"
)

// Options configures a Runner.
type Options struct {
	FS     filesystem.FS
	Logger zerolog.Logger

	// DryRun parses every line and reports what would run.
	DryRun bool

	// StopOnError aborts at the first failing line. A shell runs the whole
	// script, so the default is to keep going.
	StopOnError bool
}

// LineResult is the outcome of one script line.
type LineResult struct {
	Line    int
	Command string
	Message string
	Err     error
}

// Report summarizes one run.
type Report struct {
	Script   string
	Executed int
	Comments int
	Results  []LineResult
}

// Failures returns the lines that failed.
func (r *Report) Failures() []LineResult {
	var out []LineResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err folds the failures into one error, or nil.
func (r *Report) Err() error {
	failed := r.Failures()
	if len(failed) == 0 {
		return nil
	}
	first := failed[0]
	return errors.Wrapf(first.Err, errors.ErrUndo, "%d of %d lines failed, first at line %d (%s)",
		len(failed), len(r.Results), first.Line, first.Command).
		WithDetail("script", r.Script)
}

// Runner executes undo scripts.
type Runner struct {
	fs     filesystem.FS
	logger zerolog.Logger
	opts   Options
}

// New returns a Runner. A nil FS means the OS filesystem.
func New(opts Options) *Runner {
	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	return &Runner{fs: opts.FS, logger: opts.Logger, opts: opts}
}

// Run executes the script at path top to bottom. The returned error covers
// reading the script and cancellation; per-line failures are in the report.
func (r *Runner) Run(ctx context.Context, path string) (*Report, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return nil, errors.IOError(err, "open", path)
	}
	defer func() { _ = f.Close() }()
	return r.RunReader(ctx, path, f)
}

// RunReader executes a script read from in. name is used in messages.
func (r *Runner) RunReader(ctx context.Context, name string, in io.Reader) (*Report, error) {
	logger := r.logger.With().Str("script", name).Bool("dry_run", r.opts.DryRun).Logger()
	report := &Report{Script: name}
	arch := newArchives(r.fs)
	defer arch.close()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			report.Comments++
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, errors.ErrCancelled, "undo cancelled")
		}

		res := r.executeLine(line, arch)
		res.Line = n
		report.Results = append(report.Results, res)
		if res.Err != nil {
			logger.Warn().Err(res.Err).Int("line", n).Str("command", line).Msg("undo line failed")
			if r.opts.StopOnError {
				return report, nil
			}
			continue
		}
		report.Executed++
		logger.Debug().Int("line", n).Msg(res.Message)
	}
	if err := sc.Err(); err != nil {
		return report, errors.IOError(err, "read", name)
	}

	logger.Info().
		Int("executed", report.Executed).
		Int("failed", len(report.Failures())).
		Int("comments", report.Comments).
		Msg("undo script finished")
	return report, nil
}

func (r *Runner) executeLine(line string, arch *archives) LineResult {
	res := LineResult{Command: line}
	cmd, err := parse(line)
	if err != nil {
		res.Err = err
		return res
	}
	if r.opts.DryRun {
		res.Message = "would run: " + line
		return res
	}
	res.Message, res.Err = r.execute(cmd, arch)
	return res
}

// command is one parsed line. redirect is the target of "> file", if any.
type command struct {
	args     []string
	redirect string
}

// parse splits line into words, honouring a trailing unquoted redirect.
func parse(line string) (command, error) {
	body, target, hasRedirect := splitRedirect(line)
	args, err := shellquote.Split(body)
	if err != nil {
		return command{}, errors.Wrap(err, errors.ErrUndo, "unparsable line")
	}
	if len(args) == 0 {
		return command{}, errors.New(errors.ErrUndo, "empty command")
	}
	c := command{args: args}
	if hasRedirect {
		words, err := shellquote.Split(target)
		if err != nil {
			return command{}, errors.Wrap(err, errors.ErrUndo, "unparsable redirect")
		}
		if len(words) != 1 {
			return command{}, errors.New(errors.ErrUndo, "redirect needs exactly one file")
		}
		c.redirect = words[0]
	}
	return c, nil
}

// splitRedirect finds the first '>' outside quotes and escapes.
func splitRedirect(line string) (string, string, bool) {
	inSingle, inDouble, escaped := false, false, false
	for i, c := range line {
		switch {
		case escaped:
			escaped = false
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '>' && !inSingle && !inDouble:
			return line[:i], line[i+1:], true
		}
	}
	return line, "", false
}

func (r *Runner) execute(c command, arch *archives) (string, error) {
	name, flags, operands := split(c.args)
	if c.redirect != "" && name != "unzip" {
		return "", errors.Newf(errors.ErrUndo, "unexpected redirect for %s", name)
	}

	switch name {
	case "rm":
		if len(operands) != 1 {
			return "", usage(c)
		}
		p := operands[0]
		if flags["r"] {
			if err := r.fs.RemoveAll(p); err != nil {
				return "", errors.IOError(err, "remove", p)
			}
			return "removed tree " + p, nil
		}
		if err := r.fs.Remove(p); err != nil {
			if flags["f"] && isNotExist(err) {
				return "already gone " + p, nil
			}
			return "", errors.IOError(err, "remove", p)
		}
		return "removed " + p, nil

	case "rmdir":
		if len(operands) != 1 {
			return "", usage(c)
		}
		p := operands[0]
		info, err := r.fs.Lstat(p)
		if err != nil {
			return "", errors.IOError(err, "stat", p)
		}
		if !info.IsDir() {
			return "", errors.Newf(errors.ErrUndo, "%s is not a directory", p)
		}
		entries, err := r.fs.ReadDir(p)
		if err != nil {
			return "", errors.IOError(err, "read dir", p)
		}
		if len(entries) > 0 {
			return "", errors.Newf(errors.ErrUndo, "directory %s is not empty", p)
		}
		if err := r.fs.Remove(p); err != nil {
			return "", errors.IOError(err, "remove", p)
		}
		return "removed directory " + p, nil

	case "mkdir":
		if len(operands) != 1 {
			return "", usage(c)
		}
		p := operands[0]
		if flags["p"] {
			if err := r.fs.MkdirAll(p, 0755); err != nil {
				return "", errors.IOError(err, "mkdir", p)
			}
		} else if err := r.fs.Mkdir(p, 0755); err != nil {
			return "", errors.IOError(err, "mkdir", p)
		}
		return "created directory " + p, nil

	case "ln":
		if !flags["s"] || len(operands) != 2 {
			return "", usage(c)
		}
		target, link := operands[0], operands[1]
		if flags["f"] {
			if err := r.fs.Remove(link); err != nil && !isNotExist(err) {
				return "", errors.IOError(err, "remove", link)
			}
		}
		if err := r.fs.Symlink(target, link); err != nil {
			return "", errors.IOError(err, "symlink", link)
		}
		return fmt.Sprintf("linked %s -> %s", link, target), nil

	case "cp":
		if len(operands) != 2 {
			return "", usage(c)
		}
		if err := r.copy(operands[0], operands[1], flags["p"]); err != nil {
			return "", err
		}
		return "copied " + operands[1], nil

	case "unzip":
		if !flags["p"] || len(operands) != 2 || c.redirect == "" {
			return "", usage(c)
		}
		if err := r.restore(arch, operands[0], script.UnzipEntry(operands[1]), c.redirect); err != nil {
			return "", err
		}
		return "restored " + c.redirect, nil
	}
	return "", errors.Newf(errors.ErrUndo, "unsupported command %q", name)
}

// split separates single-letter flags from operands. Flags stop at the
// first operand or at "--".
func split(args []string) (string, map[string]bool, []string) {
	flags := map[string]bool{}
	rest := args[1:]
	i := 0
	for ; i < len(rest); i++ {
		a := rest[i]
		if a == "--" {
			i++
			break
		}
		if len(a) < 2 || a[0] != '-' {
			break
		}
		for _, f := range a[1:] {
			flags[string(f)] = true
		}
	}
	return args[0], flags, rest[i:]
}

func usage(c command) error {
	return errors.Newf(errors.ErrUndo, "unsupported form of %s", shellquote.Join(c.args...))
}

func (r *Runner) copy(src, dst string, preserve bool) error {
	info, err := r.fs.Stat(src)
	if err != nil {
		return errors.IOError(err, "stat", src)
	}
	in, err := r.fs.Open(src)
	if err != nil {
		return errors.IOError(err, "open", src)
	}
	defer func() { _ = in.Close() }()

	if err := r.writeFile(dst, in, info.Mode().Perm()); err != nil {
		return err
	}
	if preserve {
		if err := r.fs.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
			return errors.IOError(err, "chtimes", dst)
		}
	}
	return nil
}

// restore extracts entry from the zip at zipPath into dest, like
// "unzip -p zip entry > dest" but keeping the archived mode and time.
func (r *Runner) restore(arch *archives, zipPath, entry, dest string) error {
	idx, err := arch.get(zipPath)
	if err != nil {
		return err
	}
	zf, ok := idx[entry]
	if !ok {
		return errors.Newf(errors.ErrNotFound, "entry %s not in %s", entry, zipPath).
			WithDetail("archive", zipPath)
	}
	rc, err := zf.Open()
	if err != nil {
		return errors.Wrap(err, errors.ErrArchiveUnusable, "cannot open archive entry").
			WithDetail("entry", entry)
	}
	perm := zf.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	werr := r.writeFile(dest, rc, perm)
	_ = rc.Close()
	if werr != nil {
		return werr
	}
	if !zf.Modified.IsZero() {
		if err := r.fs.Chtimes(dest, zf.Modified, zf.Modified); err != nil {
			return errors.IOError(err, "chtimes", dest)
		}
	}
	return nil
}

func (r *Runner) writeFile(dst string, in io.Reader, perm fs.FileMode) error {
	out, err := r.fs.Create(dst, perm)
	if err != nil {
		return errors.IOError(err, "create", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.IOError(err, "write", dst)
	}
	if err := out.Close(); err != nil {
		return errors.IOError(err, "close", dst)
	}
	if err := r.fs.Chmod(dst, perm); err != nil {
		return errors.IOError(err, "chmod", dst)
	}
	return nil
}
