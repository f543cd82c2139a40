package install

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/Hierosoft/hierosoft/pkg/types"
)

// canonicalVersion accepts "1.2.3" as well as "v1.2.3". Anything semver
// cannot parse yields "".
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// downgradeIssue reports an issue when next is older than installed.
// Versions that are not semver are never compared.
func downgradeIssue(installed, next string) (types.Issue, bool) {
	a, b := canonicalVersion(installed), canonicalVersion(next)
	if a == "" || b == "" || semver.Compare(a, b) <= 0 {
		return types.Issue{}, false
	}
	return types.Issue{
		Message: fmt.Sprintf("version %s is older than the installed %s", next, installed),
	}, true
}
