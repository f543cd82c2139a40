package config

import (
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	herrors "github.com/Hierosoft/hierosoft/pkg/errors"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "HIEROSOFT_"

//go:embed embedded/defaults.toml
var defaultConfig []byte

// Config is the fully resolved configuration.
type Config struct {
	Install InstallConfig `koanf:"install"`
	Log     LogConfig     `koanf:"log"`
	UI      UIConfig      `koanf:"ui"`
}

// InstallConfig holds the engine settings.
type InstallConfig struct {
	ProgressInterval time.Duration `koanf:"progress_interval"`
	FollowSymlinks   bool          `koanf:"follow_symlinks"`
	AllowExternal    bool          `koanf:"allow_external"`
	MetadataDir      string        `koanf:"metadata_dir"`
	Reserved         []string      `koanf:"reserved"`
}

type LogConfig struct {
	Verbosity int    `koanf:"verbosity"`
	File      string `koanf:"file"`
}

type UIConfig struct {
	Color string `koanf:"color"`
}

// LoadOptions selects the optional layers.
type LoadOptions struct {
	// ConfigFile replaces the default user config path. A missing default
	// file is fine; a missing explicit file is an error.
	ConfigFile string

	// Overrides are applied last, keyed by dotted path ("log.verbosity").
	Overrides map[string]interface{}
}

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/hierosoft/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "hierosoft", "config.toml")
}

// Default returns the configuration built from the embedded defaults only.
func Default() *Config {
	cfg, err := Load(LoadOptions{ConfigFile: "-"})
	if err != nil {
		// the embedded file is part of the binary
		panic(err)
	}
	return cfg
}

// Load resolves the configuration layers. A ConfigFile of "-" skips the
// user file entirely.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrConfigParse, "failed to load defaults")
	}

	// 2. User config file
	if opts.ConfigFile != "-" {
		path := opts.ConfigFile
		explicit := path != ""
		if !explicit {
			path = DefaultConfigPath()
		}
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, herrors.Wrapf(err, herrors.ErrConfigParse, "failed to load config from %s", path).
					WithDetail("path", path)
			}
		} else if explicit {
			return nil, herrors.Wrapf(err, herrors.ErrConfigLoad, "config file %s", path).
				WithDetail("path", path)
		}
	}

	// 3. Environment, HIEROSOFT_INSTALL_PROGRESS_INTERVAL -> install.progress_interval
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrConfigLoad, "failed to load env vars")
	}

	// 4. Explicit overrides
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, herrors.Wrap(err, herrors.ErrConfigLoad, "failed to load overrides")
		}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, herrors.Wrap(err, herrors.ErrConfigParse, "failed to unmarshal configuration")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps the part after the prefix onto a section and a key. Only the
// first underscore separates them since keys contain underscores.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func (c *Config) validate() error {
	if c.Install.ProgressInterval < 0 {
		return herrors.Newf(herrors.ErrConfigParse, "install.progress_interval must not be negative, got %s", c.Install.ProgressInterval)
	}
	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		return herrors.Newf(herrors.ErrConfigParse, "ui.color must be auto, always or never, got %q", c.UI.Color)
	}
	if c.Log.Verbosity < 0 {
		c.Log.Verbosity = 0
	}
	return nil
}
