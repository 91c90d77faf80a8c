package object

import (
	"strconv"
	"strings"
)

// Compare orders two objects lexicographically by (Namespace, Name).
//
// This ordering is the refresh-progress cursor: it matches the key order in
// which a Kubernetes API server returns list results, so successive pages of
// one sweep are non-decreasing under Compare.
func Compare(a, b Tracked) int {
	if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// Less reports whether a orders strictly before b.
func Less(a, b Tracked) bool {
	return Compare(a, b) < 0
}

// Max returns the greatest object of objs under Compare.
// Returns false when objs is empty.
func Max(objs []Tracked) (Tracked, bool) {
	if len(objs) == 0 {
		return Tracked{}, false
	}
	best := objs[0]
	for _, o := range objs[1:] {
		if Less(best, o) {
			best = o
		}
	}
	return best, true
}

// CompareVersions compares two resource versions.
//
// Versions that both parse as unsigned integers compare numerically (the
// etcd revision case). Anything else compares by length first and then
// lexically, which keeps zero-padded and prefixed counters ordered.
// An empty version is older than any non-empty one.
func CompareVersions(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Newer reports whether candidate should replace existing on merge.
// Equal versions count as newer so a re-fetched object replaces its stale copy.
func Newer(candidate, existing Tracked) bool {
	return CompareVersions(candidate.ResourceVersion, existing.ResourceVersion) >= 0
}
