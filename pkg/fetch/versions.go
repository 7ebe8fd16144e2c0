package fetch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kilnbuild/kiln/pkg/manifest"
)

// PickVersion selects the highest available version satisfying the
// requirement. A bare requirement takes the highest version. No match is
// an error: dependency resolution is all-or-nothing.
func PickVersion(available []string, req manifest.Requirement) (string, error) {
	best := ""
	for _, candidate := range available {
		if !satisfies(candidate, req) {
			continue
		}
		if best == "" || compareVersions(candidate, best) > 0 {
			best = candidate
		}
	}
	if best == "" {
		return "", fmt.Errorf("no version of %s satisfies %s", req.Name, req)
	}
	return best, nil
}

func satisfies(version string, req manifest.Requirement) bool {
	switch req.Operator {
	case "":
		return true
	case "==":
		return compareVersions(version, req.Version) == 0
	case "!=":
		return compareVersions(version, req.Version) != 0
	case ">=":
		return compareVersions(version, req.Version) >= 0
	case "<=":
		return compareVersions(version, req.Version) <= 0
	case ">":
		return compareVersions(version, req.Version) > 0
	case "<":
		return compareVersions(version, req.Version) < 0
	case "~=":
		// Compatible release: at least the pinned version, same release
		// series (all but the last segment match).
		if compareVersions(version, req.Version) < 0 {
			return false
		}
		pin := strings.Split(req.Version, ".")
		if len(pin) < 2 {
			return true
		}
		series := strings.Join(pin[:len(pin)-1], ".")
		return version == series || strings.HasPrefix(version, series+".")
	default:
		return false
	}
}

// compareVersions compares dotted numeric versions segment by segment.
// Non-numeric segments compare lexically, which is enough for the
// pre-release suffixes that show up in practice.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		var sa, sb string
		if i < len(as) {
			sa = as[i]
		}
		if i < len(bs) {
			sb = bs[i]
		}
		na, errA := strconv.Atoi(sa)
		nb, errB := strconv.Atoi(sb)
		switch {
		case errA == nil && errB == nil:
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		default:
			if sa != sb {
				if sa < sb {
					return -1
				}
				return 1
			}
		}
	}
	return 0
}
