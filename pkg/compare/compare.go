// Package compare decides whether two files hold the same bytes. Sizes are
// checked first and SHA-256 digests only when sizes agree. Modification
// times are never consulted.
package compare

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/rs/zerolog"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
)

// Comparator compares files on one filesystem.
type Comparator struct {
	fs     filesystem.FS
	logger zerolog.Logger
}

// New returns a comparator reading through fsys.
func New(fsys filesystem.FS, logger zerolog.Logger) *Comparator {
	return &Comparator{fs: fsys, logger: logger}
}

// Identical reports whether a and b have the same content. A size mismatch
// answers false without reading either file. Read failures are returned as
// ErrIO with the offending path.
func (c *Comparator) Identical(a, b string) (bool, error) {
	ai, err := c.fs.Stat(a)
	if err != nil {
		return false, errors.IOError(err, "stat", a)
	}
	bi, err := c.fs.Stat(b)
	if err != nil {
		return false, errors.IOError(err, "stat", b)
	}
	if ai.Size() != bi.Size() {
		c.logger.Trace().Str("a", a).Str("b", b).Int64("size_a", ai.Size()).Int64("size_b", bi.Size()).Msg("size differs")
		return false, nil
	}

	ad, err := c.Digest(a)
	if err != nil {
		return false, err
	}
	bd, err := c.Digest(b)
	if err != nil {
		return false, err
	}
	same := ad == bd
	c.logger.Trace().Str("a", a).Str("b", b).Bool("identical", same).Msg("compared digests")
	return same, nil
}

// Digest returns the hex SHA-256 of path.
func (c *Comparator) Digest(path string) (string, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return "", errors.IOError(err, "open", path)
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.IOError(err, "hash", path)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HexDigest returns the hex SHA-256 of a file on the OS filesystem.
func HexDigest(path string) (string, error) {
	return New(filesystem.NewOS(), zerolog.Nop()).Digest(path)
}
