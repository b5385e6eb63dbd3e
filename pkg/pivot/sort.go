package pivot

import (
	"math"
	"sort"
	"strings"
)

// SortMode picks the precedence for composite categorical keys: group
// rows by host first, or by access pattern first. Size and count keys
// ignore the mode.
type SortMode string

const (
	SortHostnameFirst SortMode = "hostname"
	SortPatternFirst  SortMode = "pattern"
)

// Valid reports whether m names a known sort mode.
func (m SortMode) Valid() bool {
	return m == SortHostnameFirst || m == SortPatternFirst
}

// SortKeys returns the keys in their display order without mutating the
// input. The order is total and deterministic for any key set: equal
// ordering fields fall through to the label and finally the join value,
// so re-sorting sorted output is a no-op.
func SortKeys(keys []Key, mode SortMode) []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	sort.SliceStable(out, func(i, j int) bool {
		return keyLess(out[i], out[j], mode)
	})
	return out
}

func keyLess(a, b Key, mode SortMode) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case KindSize:
		if a.Bytes != b.Bytes {
			return a.Bytes < b.Bytes
		}
	case KindCount:
		an, bn := !math.IsNaN(a.Count), !math.IsNaN(b.Count)
		switch {
		case an && bn:
			if a.Count != b.Count {
				return a.Count < b.Count
			}
		case an != bn:
			// numeric values sort ahead of unparseable ones
			return an
		}
	case KindCategory:
		if mode == SortPatternFirst {
			if c := patternCompare(a.Pattern, b.Pattern); c != 0 {
				return c < 0
			}
			if a.Host != b.Host {
				return a.Host < b.Host
			}
			if a.Device != b.Device {
				return a.Device < b.Device
			}
		} else {
			if a.Host != b.Host {
				return a.Host < b.Host
			}
			if a.Device != b.Device {
				return a.Device < b.Device
			}
			if c := patternCompare(a.Pattern, b.Pattern); c != 0 {
				return c < 0
			}
		}
	}
	if a.Label != b.Label {
		return a.Label < b.Label
	}
	return a.Join < b.Join
}

func patternCompare(a, b string) int {
	ar, br := patternRank(a), patternRank(b)
	if ar != br {
		return ar - br
	}
	return strings.Compare(a, b)
}

// patternRank orders access patterns: reads, then writes, then mixed
// workloads, then anything unrecognized.
func patternRank(pattern string) int {
	p := strings.ToLower(pattern)
	switch {
	case p == "":
		return 0
	case strings.HasSuffix(p, "read"):
		return 0
	case strings.HasSuffix(p, "write"):
		return 1
	case strings.Contains(p, "mixed") || strings.Contains(p, "rw"):
		return 2
	}
	return 3
}
