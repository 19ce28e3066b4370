package solidity

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	goversion "github.com/hashicorp/go-version"
)

// ErrNoCompatibleVersion marks a pragma whose whole range lies below the
// supported compiler floor.
var ErrNoCompatibleVersion = errors.New("no compatible compiler version")

var (
	pragmaPattern  = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
	versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+|\d+\.\d+`)
)

// ExtractPragma returns the version expression of the first solidity pragma
// in a source file, or the empty string when the file carries none.
func ExtractPragma(src []byte) string {
	m := pragmaPattern.FindSubmatch(src)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// VersionFromPragma picks the compiler version for a source file: the lowest
// version named in the pragma expression that is at or above min. Operators
// are ignored, the named versions are what the toolchain installs.
func VersionFromPragma(pragma string, min *goversion.Version) (string, error) {
	literals := versionPattern.FindAllString(pragma, -1)
	if len(literals) == 0 {
		return "", ErrNoCompatibleVersion
	}

	versions := make([]*goversion.Version, 0, len(literals))
	for _, lit := range literals {
		v, err := goversion.NewVersion(lit)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	if len(versions) == 0 {
		return "", ErrNoCompatibleVersion
	}

	sort.Sort(goversion.Collection(versions))
	for _, v := range versions {
		if v.GreaterThanOrEqual(min) {
			// The toolchain wants all three segments, a bare 0.4 becomes 0.4.0.
			segs := v.Segments()
			return fmt.Sprintf("%d.%d.%d", segs[0], segs[1], segs[2]), nil
		}
	}
	return "", ErrNoCompatibleVersion
}
