package paths

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

var unixSystemFolders = []string{
	"/bin", "/boot", "/dev", "/etc", "/home", "/lib", "/lib64", "/media",
	"/mnt", "/opt", "/proc", "/root", "/run", "/sbin", "/srv", "/sys",
	"/tmp", "/usr", "/usr/bin", "/usr/lib", "/usr/local", "/usr/local/bin",
	"/usr/share", "/var", "/Applications", "/Library", "/System", "/Users",
}

// ReservedFolders lists the folders an install root may neither equal nor
// contain. Empty entries are dropped and the rest are cleaned. extra is
// appended as is, typically from install.reserved.
func ReservedFolders(extra ...string) []string {
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		out = append(out, filepath.Clean(ExpandHome(p)))
	}

	if home, err := os.UserHomeDir(); err == nil {
		add(home)
	}

	add(xdg.UserDirs.Desktop)
	add(xdg.UserDirs.Documents)
	add(xdg.UserDirs.Download)
	add(xdg.UserDirs.Music)
	add(xdg.UserDirs.Pictures)
	add(xdg.UserDirs.Videos)
	add(xdg.UserDirs.Templates)
	add(xdg.UserDirs.PublicShare)

	add(xdg.DataHome)
	add(xdg.ConfigHome)
	add(xdg.CacheHome)
	add(xdg.StateHome)

	if runtime.GOOS != "windows" {
		for _, p := range unixSystemFolders {
			add(p)
		}
	}

	for _, p := range extra {
		add(p)
	}
	return out
}
