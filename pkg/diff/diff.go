// Package diff renders unified diffs of the text files an install would
// overwrite, for previewing a plan.
package diff

import (
	"bytes"
	"context"
	"io"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

const (
	DefaultContext  = 3
	DefaultMaxBytes = 1 << 20

	// sniffLen bytes are inspected to tell text from binary.
	sniffLen = 8000
)

type Options struct {
	FS     filesystem.FS
	Logger zerolog.Logger

	// Context is the number of unchanged lines around each hunk.
	Context int
	// MaxBytes skips files larger than this on either side.
	MaxBytes int64
}

// FileDiff is the preview of one overwritten file. Unified is empty when
// the file is binary or too large to show.
type FileDiff struct {
	Rel      string `json:"rel"`
	Unified  string `json:"unified,omitempty"`
	Binary   bool   `json:"binary,omitempty"`
	TooLarge bool   `json:"too_large,omitempty"`
}

// Overwrites returns a diff for every overwrite in plan, in plan order.
func Overwrites(ctx context.Context, plan types.Plan, opts Options) ([]FileDiff, error) {
	if opts.FS == nil {
		opts.FS = filesystem.NewOS()
	}
	if opts.Context <= 0 {
		opts.Context = DefaultContext
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	var out []FileDiff
	for _, d := range plan {
		if d.Mode != types.ModeAdd || d.Kind != types.KindFile || !d.Overwrite {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, errors.Wrap(err, errors.ErrCancelled, "diff cancelled")
		}
		fd, err := fileDiff(opts, d)
		if err != nil {
			return out, err
		}
		opts.Logger.Debug().Str("rel", d.Rel).Bool("binary", fd.Binary).Msg("diffed")
		out = append(out, fd)
	}
	return out, nil
}

func fileDiff(opts Options, d types.EntryDecision) (FileDiff, error) {
	fd := FileDiff{Rel: d.Rel}
	old, tooLarge, err := read(opts.FS, d.Dest, opts.MaxBytes)
	if err != nil {
		return fd, err
	}
	if tooLarge {
		fd.TooLarge = true
		return fd, nil
	}
	next, tooLarge, err := read(opts.FS, d.Source, opts.MaxBytes)
	if err != nil {
		return fd, err
	}
	if tooLarge {
		fd.TooLarge = true
		return fd, nil
	}
	if !IsText(old) || !IsText(next) {
		fd.Binary = true
		return fd, nil
	}
	fd.Unified, err = Unified(d.Rel, old, next, opts.Context)
	return fd, err
}

// Unified diffs the installed content against the incoming content.
func Unified(rel string, installed, incoming []byte, context int) (string, error) {
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(installed)),
		B:        difflib.SplitLines(string(incoming)),
		FromFile: "installed/" + rel,
		ToFile:   "incoming/" + rel,
		Context:  context,
	})
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrInternal, "diff %s", rel)
	}
	return s, nil
}

// IsText reports whether data looks like UTF-8 text: no NUL byte and valid
// encoding in the leading bytes.
func IsText(data []byte) bool {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
		// a multi-byte rune may straddle the cut
		for i := 0; i < utf8.UTFMax && !utf8.Valid(head); i++ {
			head = head[:len(head)-1]
		}
	}
	return bytes.IndexByte(head, 0) < 0 && utf8.Valid(head)
}

func read(fsys filesystem.FS, path string, limit int64) ([]byte, bool, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, false, errors.IOError(err, "read", path)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, false, errors.IOError(err, "read", path)
	}
	if int64(len(data)) > limit {
		return nil, true, nil
	}
	return data, false, nil
}
