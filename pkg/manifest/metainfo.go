package manifest

import (
	stderrors "errors"
	"io/fs"
	"strings"

	"github.com/beevik/etree"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/types"
)

// ParseMetainfo reads the package identity from an AppStream metainfo
// document. The first <release> is taken as the version, following the
// newest-first convention of the format.
func ParseMetainfo(data []byte) (types.PackageMeta, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return types.PackageMeta{}, errors.Wrap(err, errors.ErrManifestParse, "invalid metainfo XML")
	}
	root := doc.Root()
	if root == nil || (root.Tag != "component" && root.Tag != "application") {
		return types.PackageMeta{}, errors.New(errors.ErrManifestParse, "metainfo has no <component> root")
	}

	meta := types.PackageMeta{
		LUID: strings.TrimSuffix(text(root.SelectElement("id")), ".desktop"),
		Name: untranslated(root, "name"),
	}
	if dev := root.SelectElement("developer"); dev != nil {
		meta.Organization = untranslated(dev, "name")
	}
	if meta.Organization == "" {
		meta.Organization = untranslated(root, "developer_name")
	}
	if rel := root.FindElement("releases/release"); rel != nil {
		meta.Version = rel.SelectAttrValue("version", "")
	}
	if meta.LUID == "" {
		return types.PackageMeta{}, errors.New(errors.ErrManifestParse, "metainfo has no <id>")
	}
	return meta, nil
}

// untranslated returns the text of the first child tag without an
// xml:lang attribute.
func untranslated(e *etree.Element, tag string) string {
	for _, c := range e.SelectElements(tag) {
		if c.SelectAttr("xml:lang") == nil && c.SelectAttr("lang") == nil {
			return text(c)
		}
	}
	return ""
}

func text(e *etree.Element) string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.Text())
}

func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist)
}
