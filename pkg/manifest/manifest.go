// Package manifest reads the optional install manifest shipped at the root
// of a package: hierosoft.toml, hierosoft.yaml or hierosoft.yml. When the
// package also carries an AppStream metainfo file, it fills the package
// id, name, version and organization the manifest leaves blank.
package manifest

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/filesystem"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// Manifest file names, in lookup order.
var FileNames = []string{"hierosoft.toml", "hierosoft.yaml", "hierosoft.yml"}

// metainfoDirs are searched for *.metainfo.xml and *.appdata.xml,
// relative to the source root.
var metainfoDirs = []string{".", "share/metainfo", "usr/share/metainfo"}

// Manifest is the install manifest of a package.
type Manifest struct {
	Package  types.PackageMeta `toml:"package" yaml:"package"`
	Keeps    []string          `toml:"keeps" yaml:"keeps"`
	Replaces []string          `toml:"replaces" yaml:"replaces"`

	// Path is the file the manifest was read from, empty when none was
	// found. Metainfo is the AppStream file consulted, if any.
	Path     string `toml:"-" yaml:"-"`
	Metainfo string `toml:"-" yaml:"-"`
}

// ParseTOML decodes a TOML manifest.
func ParseTOML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrManifestParse, "invalid TOML manifest")
	}
	return &m, nil
}

// ParseYAML decodes a YAML manifest.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrManifestParse, "invalid YAML manifest")
	}
	return &m, nil
}

// Load reads the manifest and metainfo found under sourceRoot. A package
// without either yields an empty manifest.
func Load(fsys filesystem.FS, sourceRoot string, logger zerolog.Logger) (*Manifest, error) {
	m := &Manifest{}
	for _, name := range FileNames {
		p := filepath.Join(sourceRoot, name)
		data, err := readFile(fsys, p)
		if err != nil {
			if isNotExist(err) {
				continue
			}
			return nil, errors.IOError(err, "read", p)
		}
		if strings.HasSuffix(name, ".toml") {
			m, err = ParseTOML(data)
		} else {
			m, err = ParseYAML(data)
		}
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrManifestParse, "manifest %s", p)
		}
		m.Path = p
		logger.Debug().Str("path", p).Msg("manifest loaded")
		break
	}

	info, path, err := findMetainfo(fsys, sourceRoot)
	if err != nil {
		return nil, err
	}
	if path != "" {
		m.Metainfo = path
		m.Package = fillMeta(m.Package, info)
		logger.Debug().Str("path", path).Str("id", info.LUID).Msg("metainfo loaded")
	}
	return m, nil
}

// Apply merges the manifest into spec. Keeps and replaces are added to
// what spec already has; metadata fields are filled only where spec is
// blank.
func (m *Manifest) Apply(spec *types.InstallSpec) {
	if spec.Keeps == nil {
		spec.Keeps = types.PathSet{}
	}
	if spec.Replaces == nil {
		spec.Replaces = types.PathSet{}
	}
	for _, k := range m.Keeps {
		spec.Keeps.Add(k)
	}
	for _, r := range m.Replaces {
		spec.Replaces.Add(r)
	}
	spec.Meta = fillMeta(spec.Meta, m.Package)
}

// fillMeta copies the fields of from into the blank fields of into.
func fillMeta(into, from types.PackageMeta) types.PackageMeta {
	if into.LUID == "" {
		into.LUID = from.LUID
	}
	if into.Name == "" {
		into.Name = from.Name
	}
	if into.Version == "" {
		into.Version = from.Version
	}
	if into.Organization == "" {
		into.Organization = from.Organization
	}
	if len(into.ShortcutExeRelPaths) == 0 {
		into.ShortcutExeRelPaths = from.ShortcutExeRelPaths
	}
	if len(from.Extra) > 0 {
		if into.Extra == nil {
			into.Extra = map[string]interface{}{}
		}
		for k, v := range from.Extra {
			if _, ok := into.Extra[k]; !ok {
				into.Extra[k] = v
			}
		}
	}
	return into
}

func findMetainfo(fsys filesystem.FS, sourceRoot string) (types.PackageMeta, string, error) {
	for _, dir := range metainfoDirs {
		d := filepath.Join(sourceRoot, filepath.FromSlash(dir))
		entries, err := fsys.ReadDir(d)
		if err != nil {
			continue
		}
		var names []string
		for _, e := range entries {
			n := e.Name()
			if !e.IsDir() && (strings.HasSuffix(n, ".metainfo.xml") || strings.HasSuffix(n, ".appdata.xml")) {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		p := filepath.Join(d, names[0])
		data, err := readFile(fsys, p)
		if err != nil {
			return types.PackageMeta{}, "", errors.IOError(err, "read", p)
		}
		meta, err := ParseMetainfo(data)
		if err != nil {
			return types.PackageMeta{}, "", errors.Wrapf(err, errors.ErrManifestParse, "metainfo %s", p)
		}
		return meta, p, nil
	}
	return types.PackageMeta{}, "", nil
}

func readFile(fsys filesystem.FS, path string) ([]byte, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
