// Package paths resolves where hierosoft keeps its own files. It follows the
// XDG Base Directory specification through adrg/xdg and also knows which
// folders must never be used as an install root.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/Hierosoft/hierosoft/pkg/errors"
)

// Environment variable names
const (
	// EnvDataDir overrides the XDG data directory for hierosoft
	EnvDataDir = "HIEROSOFT_DATA_DIR"

	// EnvStateDir overrides the XDG state directory for hierosoft
	EnvStateDir = "HIEROSOFT_STATE_DIR"

	// EnvCacheDir overrides the XDG cache directory, where package
	// archives are extracted
	EnvCacheDir = "HIEROSOFT_CACHE_DIR"

	// EnvHome is the standard home directory variable
	EnvHome = "HOME"
)

// Directory and file names inside the hierosoft data directory. These are
// part of the on-disk layout read by uninstall and status and are not
// user-configurable.
const (
	AppDirName       = "hierosoft"
	InstalledDirName = "installed"
	TransactionsDir  = "transactions"
	LogFileName      = "hierosoft.log"
	ConfigFileName   = "config.toml"
)

// Paths holds the resolved hierosoft directories.
type Paths struct {
	dataDir      string
	configDir    string
	cacheDir     string
	stateDir     string
	metadataRoot string
}

// New resolves the directories. metadataRoot replaces the default
// $XDG_DATA_HOME/hierosoft/installed when non-empty.
func New(metadataRoot string) (*Paths, error) {
	p := &Paths{
		configDir: filepath.Join(xdg.ConfigHome, AppDirName),
		cacheDir:  filepath.Join(xdg.CacheHome, AppDirName),
	}
	if cacheDir := os.Getenv(EnvCacheDir); cacheDir != "" {
		p.cacheDir = ExpandHome(cacheDir)
	}

	if dataDir := os.Getenv(EnvDataDir); dataDir != "" {
		p.dataDir = ExpandHome(dataDir)
	} else {
		p.dataDir = filepath.Join(xdg.DataHome, AppDirName)
	}

	if stateDir := os.Getenv(EnvStateDir); stateDir != "" {
		p.stateDir = ExpandHome(stateDir)
	} else {
		p.stateDir = filepath.Join(xdg.StateHome, AppDirName)
	}

	if metadataRoot != "" {
		abs, err := filepath.Abs(ExpandHome(metadataRoot))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInvalidInput, "failed to get absolute path for metadata dir %s", metadataRoot)
		}
		p.metadataRoot = abs
	} else {
		p.metadataRoot = filepath.Join(p.dataDir, InstalledDirName)
	}

	return p, nil
}

func (p *Paths) DataDir() string   { return p.dataDir }
func (p *Paths) ConfigDir() string { return p.configDir }
func (p *Paths) CacheDir() string  { return p.cacheDir }
func (p *Paths) StateDir() string  { return p.stateDir }

// MetadataRoot is the directory holding one metadata directory per
// installed package.
func (p *Paths) MetadataRoot() string { return p.metadataRoot }

// PackageDir returns the metadata directory of the package with the given
// LUID.
func (p *Paths) PackageDir(luid string) (string, error) {
	if err := ValidateLUID(luid); err != nil {
		return "", err
	}
	return filepath.Join(p.metadataRoot, luid), nil
}

// TransactionDir returns the directory holding the undo script, redo log and
// backup archive of one install.
func (p *Paths) TransactionDir(luid, installID string) (string, error) {
	pkgDir, err := p.PackageDir(luid)
	if err != nil {
		return "", err
	}
	if err := ValidateLUID(installID); err != nil {
		return "", errors.Wrap(err, errors.ErrInvalidInput, "invalid install id")
	}
	return filepath.Join(pkgDir, TransactionsDir, installID), nil
}

// LogFilePath returns the path to the hierosoft log file
func (p *Paths) LogFilePath() string {
	return filepath.Join(p.stateDir, LogFileName)
}

// ConfigFilePath returns the path of the user config file
func (p *Paths) ConfigFilePath() string {
	return filepath.Join(p.configDir, ConfigFileName)
}

// ExpandHome expands ~ to the home directory
func ExpandHome(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// Fallback to HOME env var
			homeDir = os.Getenv(EnvHome)
			if homeDir == "" {
				// Can't expand, return as-is
				return path
			}
		}

		if len(path) == 1 {
			return homeDir
		}

		// Handle both ~/ and ~
		if path[1] == '/' || path[1] == filepath.Separator {
			return filepath.Join(homeDir, path[2:])
		}

		// ~something (not the user's home)
		return path
	}

	return path
}
