package cdn

import (
	"regexp"
	"sort"
	"strings"
)

// WildcardAll invalidates every object in a distribution.
const WildcardAll = "/*"

var repeatedSlashes = regexp.MustCompile(`/+`)

// NormalizePath returns p with a leading slash and no repeated slashes.
func NormalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return repeatedSlashes.ReplaceAllString(p, "/")
}

// PreparePaths normalizes, deduplicates and sorts paths, then drops every
// path already covered by a wildcard. With all set the result is just "/*".
func PreparePaths(paths []string, all bool) []string {
	if all {
		return []string{WildcardAll}
	}

	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		n := NormalizePath(p)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)

	return RemoveRedundant(out)
}

// RemoveRedundant drops paths subsumed by a "P/*" wildcard in the same set.
// A wildcard covers every path whose directory chain includes P, including
// deeper wildcards. Each path costs one map lookup per directory level.
//
// Wildcard prefixes are collected before filtering, so the result does not
// depend on where "*" sorts relative to sibling names.
func RemoveRedundant(paths []string) []string {
	prefixes := make(map[string]struct{})
	for _, p := range paths {
		if strings.HasSuffix(p, "/*") {
			prefixes[p[:len(p)-2]] = struct{}{}
		}
	}
	if len(prefixes) == 0 {
		return paths
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !coveredByWildcard(p, prefixes) {
			out = append(out, p)
		}
	}
	return out
}

// coveredByWildcard checks each ancestor directory of p against prefixes.
// A wildcard path is only checked against strict ancestors of its own prefix.
func coveredByWildcard(p string, prefixes map[string]struct{}) bool {
	limit := len(p)
	if strings.HasSuffix(p, "/*") {
		limit = len(p) - 2
	}
	for i := 0; i < limit; i++ {
		if p[i] != '/' {
			continue
		}
		if _, ok := prefixes[p[:i]]; ok {
			return true
		}
	}
	return false
}

// Batches splits paths into consecutive groups of at most size paths.
func Batches(paths []string, size int) [][]string {
	if size <= 0 {
		size = len(paths)
	}

	var out [][]string
	for len(paths) > 0 {
		n := min(size, len(paths))
		out = append(out, paths[:n:n])
		paths = paths[n:]
	}
	return out
}
