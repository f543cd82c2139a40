package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hierosoft/hierosoft/pkg/errors"
)

func TestNew(t *testing.T) {
	t.Run("default layout", func(t *testing.T) {
		t.Setenv(EnvDataDir, "")
		t.Setenv(EnvStateDir, "")
		t.Setenv(EnvCacheDir, "")

		p, err := New("")
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(p.DataDir(), "installed"), p.MetadataRoot())
		assert.Equal(t, "hierosoft", filepath.Base(p.DataDir()))
		assert.Equal(t, "hierosoft", filepath.Base(p.ConfigDir()))
		assert.Equal(t, "hierosoft", filepath.Base(p.CacheDir()))
		assert.Equal(t, filepath.Join(p.StateDir(), "hierosoft.log"), p.LogFilePath())
		assert.Equal(t, filepath.Join(p.ConfigDir(), "config.toml"), p.ConfigFilePath())
	})

	t.Run("env overrides", func(t *testing.T) {
		tmp := t.TempDir()
		t.Setenv(EnvDataDir, filepath.Join(tmp, "data"))
		t.Setenv(EnvStateDir, filepath.Join(tmp, "state"))
		t.Setenv(EnvCacheDir, filepath.Join(tmp, "cache"))

		p, err := New("")
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(tmp, "cache"), p.CacheDir())

		assert.Equal(t, filepath.Join(tmp, "data"), p.DataDir())
		assert.Equal(t, filepath.Join(tmp, "data", "installed"), p.MetadataRoot())
		assert.Equal(t, filepath.Join(tmp, "state", "hierosoft.log"), p.LogFilePath())
	})

	t.Run("metadata override", func(t *testing.T) {
		tmp := t.TempDir()
		p, err := New(tmp)
		require.NoError(t, err)
		assert.Equal(t, tmp, p.MetadataRoot())
	})
}

func TestPackageAndTransactionDir(t *testing.T) {
	root := t.TempDir()
	p, err := New(root)
	require.NoError(t, err)

	dir, err := p.PackageDir("org.example.app")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "org.example.app"), dir)

	tx, err := p.TransactionDir("org.example.app", "20240102T030405.000000Z")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "org.example.app", "transactions", "20240102T030405.000000Z"), tx)

	_, err = p.PackageDir("../escape")
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))

	_, err = p.TransactionDir("app", "")
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/apps", filepath.Join(home, "apps")},
		{"~other/apps", "~other/apps"},
		{"/abs/path", "/abs/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandHome(tt.in))
		})
	}
}

func TestReservedFolders(t *testing.T) {
	reserved := ReservedFolders("/srv/shared/")

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Contains(t, reserved, filepath.Clean(home))
	assert.Contains(t, reserved, "/srv/shared")
	for _, r := range reserved {
		assert.NotEmpty(t, r)
		assert.Equal(t, filepath.Clean(r), r)
	}
}
