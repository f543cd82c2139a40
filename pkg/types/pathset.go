package types

import (
	"sort"
	"strings"

	"github.com/Hierosoft/hierosoft/pkg/paths"
)

// PathSet is a set of root-relative paths in cleaned slash form.
type PathSet map[string]struct{}

// NewPathSet builds a set, normalizing every entry.
func NewPathSet(rels ...string) PathSet {
	s := make(PathSet, len(rels))
	for _, r := range rels {
		s.Add(r)
	}
	return s
}

func (s PathSet) Add(rel string) {
	s[paths.NormalizeRelative(rel)] = struct{}{}
}

// Has reports whether rel itself is in the set.
func (s PathSet) Has(rel string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[paths.NormalizeRelative(rel)]
	return ok
}

// Covers reports whether rel or any of its ancestors is in the set.
func (s PathSet) Covers(rel string) bool {
	if len(s) == 0 || rel == "" {
		return false
	}
	rel = paths.NormalizeRelative(rel)
	for {
		if _, ok := s[rel]; ok {
			return true
		}
		i := strings.LastIndexByte(rel, '/')
		if i < 0 {
			return false
		}
		rel = rel[:i]
	}
}

// HasBelow reports whether some entry lies strictly below rel. The empty
// rel stands for the root and matches any entry.
func (s PathSet) HasBelow(rel string) bool {
	if rel == "" {
		return len(s) > 0
	}
	prefix := paths.NormalizeRelative(rel) + "/"
	for k := range s {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Sorted returns the entries in lexical order.
func (s PathSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
