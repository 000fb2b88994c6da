// Package glob wraps doublestar so the rest of the gateway matches patterns
// the same way everywhere: forbidden patterns, scope.paths, scope.repos.
package glob

import "github.com/bmatcuk/doublestar/v4"

// Match reports whether name satisfies pattern, supporting "**" for
// arbitrary-depth segments. An invalid pattern is treated as a non-match
// rather than a panic or error; policy.Validate does not check pattern
// syntax.
func Match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	if err != nil {
		return false
	}
	return ok
}

// MatchAny reports whether name satisfies any of patterns.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}
