package stats

import "strings"

// EqualFold returns true if s1 and s2 are equal under Unicode case-folding.
// Status and resolution names are always compared this way.
func EqualFold(s1, s2 string) bool {
	return strings.EqualFold(s1, s2)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// nameSet is a case-insensitive set of workflow names.
type nameSet map[string]struct{}

func newNameSet(names []string) nameSet {
	set := make(nameSet, len(names))
	for _, n := range names {
		if n = normalize(n); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func (s nameSet) has(name string) bool {
	_, ok := s[normalize(name)]
	return ok
}
