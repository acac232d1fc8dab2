package hooks

import "strings"

// Match reports whether a colon-separated pattern matches an action key.
// Each pattern segment matches the corresponding key segment literally, or
// via "*" for exactly one segment, or via a trailing "**" for one or more
// remaining segments. Matching is case-insensitive.
func Match(pattern, key string) bool {
	p := strings.Split(strings.ToLower(pattern), ":")
	k := strings.Split(strings.ToLower(key), ":")

	for i, seg := range p {
		if seg == "**" {
			// Only valid as the final segment; consumes one or more.
			return i == len(p)-1 && len(k) > i
		}
		if i >= len(k) {
			return false
		}
		if seg != "*" && seg != k[i] {
			return false
		}
	}
	return len(p) == len(k)
}
