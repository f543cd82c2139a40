package archive

import (
	"path/filepath"
	"strings"

	"github.com/Hierosoft/hierosoft/pkg/paths"
)

// Entry namespaces inside removed.zip.
const (
	ProgramPrefix = "program/"
	SystemPrefix  = "system/"
)

// SanitizeName normalizes a ZIP entry path: forward slashes, no drive, no
// leading '/', and '.' or '..' segments removed without escaping the root.
func SanitizeName(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	s = strings.Join(stack, "/")
	if s == "" {
		return "entry"
	}
	return s
}

// EntryName maps an absolute path to its archive entry: program/<rel> for
// paths inside destRoot, system/<path> for anything else.
func EntryName(destRoot, path string) string {
	if destRoot != "" && paths.IsWithin(destRoot, path) {
		rel, err := filepath.Rel(filepath.Clean(destRoot), filepath.Clean(path))
		if err == nil && rel != "." {
			return ProgramPrefix + SanitizeName(rel)
		}
	}
	return SystemPrefix + SanitizeName(path)
}
