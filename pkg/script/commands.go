package script

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command builders. Every argument is quoted for /bin/sh.

func CopyFile(src, dst string) string {
	return shellquote.Join("cp", "-p", src, dst)
}

func MakeDir(path string) string {
	return shellquote.Join("mkdir", path)
}

func MakeDirAll(path string) string {
	return shellquote.Join("mkdir", "-p", path)
}

func Symlink(target, link string) string {
	return shellquote.Join("ln", "-s", target, link)
}

// ForceSymlink replaces whatever is at link.
func ForceSymlink(target, link string) string {
	return shellquote.Join("ln", "-sfn", target, link)
}

func Remove(path string) string {
	return shellquote.Join("rm", "-f", path)
}

func RemoveTree(path string) string {
	return shellquote.Join("rm", "-rf", path)
}

func RemoveDir(path string) string {
	return shellquote.Join("rmdir", path)
}

// RestoreFile writes one archive entry back to dest.
func RestoreFile(zipPath, entry, dest string) string {
	return shellquote.Join("unzip", "-p", zipPath, UnzipPattern(entry)) + " > " + shellquote.Join(dest)
}

var (
	unzipEscaper   = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	unzipUnescaper = strings.NewReplacer(`\\`, `\`, `\*`, "*", `\?`, "?", `\[`, "[", `\]`, "]")
)

// UnzipPattern escapes the characters unzip treats as wildcards in an
// entry argument, so the pattern matches entry alone.
func UnzipPattern(entry string) string {
	return unzipEscaper.Replace(entry)
}

// UnzipEntry is the inverse of UnzipPattern.
func UnzipEntry(pattern string) string {
	return unzipUnescaper.Replace(pattern)
}

// Comment turns text into a comment line, one "# " per line of text.
func Comment(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "# " + l
	}
	return strings.Join(lines, "\n")
}

// Skipped comments out a command and appends the reason it was not run.
func Skipped(command, reason string) string {
	line := "# " + command
	if reason != "" {
		line += "  # " + reason
	}
	return line
}
