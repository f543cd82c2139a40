package paths

import (
	"path/filepath"
	"strings"

	"github.com/Hierosoft/hierosoft/pkg/errors"
)

// ValidatePath performs basic validation on a path.
// It checks for:
// - Empty paths
// - Null bytes
// - Excessive path length
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New(errors.ErrInvalidInput, "path cannot be empty")
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return errors.New(errors.ErrInvalidInput, "path contains null bytes")
	}

	// Check path length (common filesystem limit)
	if len(path) > 4096 {
		return errors.New(errors.ErrInvalidInput, "path exceeds maximum length")
	}

	return nil
}

// ValidateLUID ensures a package id is usable as a single directory name.
func ValidateLUID(luid string) error {
	if luid == "" {
		return errors.New(errors.ErrInvalidInput, "luid cannot be empty")
	}
	if strings.ContainsAny(luid, "/\\") {
		return errors.Newf(errors.ErrInvalidInput, "luid %q cannot contain path separators", luid)
	}
	if luid == "." || luid == ".." {
		return errors.New(errors.ErrInvalidInput, "luid cannot be '.' or '..'")
	}
	if strings.ContainsAny(luid, ":*?\"<>|") {
		return errors.Newf(errors.ErrInvalidInput, "luid %q contains invalid characters", luid)
	}
	for _, r := range luid {
		if r < 32 {
			return errors.New(errors.ErrInvalidInput, "luid contains control characters")
		}
	}
	return nil
}

// SanitizePath expands ~ and cleans the path. It never returns an empty
// string.
func SanitizePath(path string) string {
	path = ExpandHome(path)
	cleaned := filepath.Clean(path)
	if cleaned == "" {
		return "."
	}
	return cleaned
}

// IsBareRoot reports whether path is a filesystem root such as "/" or "C:\".
func IsBareRoot(path string) bool {
	cleaned := filepath.Clean(path)
	return filepath.Dir(cleaned) == cleaned
}

// IsWithin reports whether path is root itself or lies below it. Both are
// cleaned first; no symlinks are resolved.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(SanitizePath(root), SanitizePath(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateInstallRoot checks a source or destination root. The path must be
// absolute, must not be a bare root, must not end in a separator, and must
// neither equal nor contain any reserved folder.
func ValidateInstallRoot(path string, reserved []string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if !filepath.IsAbs(path) {
		return errors.Newf(errors.ErrSpecInvalid, "%s is not an absolute path", path).WithDetail("path", path)
	}
	if IsBareRoot(path) {
		return errors.Newf(errors.ErrSpecInvalid, "%s is a filesystem root", path).WithDetail("path", path)
	}
	if strings.HasSuffix(path, string(filepath.Separator)) || strings.HasSuffix(path, "/") {
		return errors.Newf(errors.ErrSpecInvalid, "%s ends with a path separator", path).WithDetail("path", path)
	}
	cleaned := filepath.Clean(path)
	for _, r := range reserved {
		if IsWithin(cleaned, r) {
			return errors.Newf(errors.ErrSpecInvalid, "%s is or contains the reserved folder %s", path, r).
				WithDetail("path", path).
				WithDetail("reserved", r)
		}
	}
	return nil
}

// ValidateRelative checks a keeps or replaces entry: it must be relative,
// non-blank and must not climb out of its root.
func ValidateRelative(rel string) error {
	if err := ValidatePath(rel); err != nil {
		return errors.Wrapf(err, errors.ErrSpecInvalid, "invalid relative path %q", rel)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return errors.Newf(errors.ErrSpecInvalid, "%s must be relative to the package root", rel).WithDetail("path", rel)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return errors.Newf(errors.ErrSpecInvalid, "%s escapes the package root", rel).WithDetail("path", rel)
	}
	return nil
}

// NormalizeRelative returns the cleaned slash form used as a set key for
// keeps and replaces.
func NormalizeRelative(rel string) string {
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
}
