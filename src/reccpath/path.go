// Package reccpath implements the lexical path manipulation needed to
// translate local filesystem paths into paths meaningful inside a remote
// input root, and back. All operations are purely lexical: no argument is
// ever stat'd or opened here. Paths are '/'-separated byte sequences; no
// assumption of UTF-8 validity is made, so callers should not expect rune
// semantics from these helpers.
package reccpath

import "strings"

// Normalize collapses "." and ".." segments and empty segments out of p. A
// leading slash (absolute path) is preserved. A trailing slash is dropped.
// ".." segments that cannot be cancelled against a preceding real segment
// are retained at the front of a relative result and dropped from an
// absolute one.
func Normalize(p string) string {
	if p == "" {
		return "."
	}
	absolute := strings.HasPrefix(p, "/")
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if n := len(out); n > 0 && out[n-1] != ".." {
				out = out[:n-1]
			} else if !absolute {
				out = append(out, "..")
			}
			// An absolute path can never walk above "/"; a leading ".." is dropped.
		default:
			out = append(out, seg)
		}
	}
	joined := strings.Join(out, "/")
	if absolute {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// MakeAbsolute joins p onto cwd (if p is not already absolute) and
// normalizes the result.
func MakeAbsolute(p, cwd string) string {
	if strings.HasPrefix(p, "/") {
		return Normalize(p)
	}
	if cwd == "" {
		return Normalize(p)
	}
	return Normalize(cwd + "/" + p)
}

// MakeRelative expresses p relative to base using the minimal number of
// ".." segments. If p is not absolute, or base is empty, p is returned
// unchanged. If p falls outside projectRoot (when projectRoot is
// non-empty), p is returned unchanged rather than leaking a path above the
// project root through relativization.
func MakeRelative(p, base, projectRoot string) string {
	if !strings.HasPrefix(p, "/") || base == "" {
		return p
	}
	np := Normalize(p)
	nb := Normalize(base)
	if projectRoot != "" {
		root := Normalize(projectRoot)
		if !HasPrefix(np, root) && np != root {
			return p
		}
	}
	pSegs := splitSegments(np)
	bSegs := splitSegments(nb)

	common := 0
	for common < len(pSegs) && common < len(bSegs) && pSegs[common] == bSegs[common] {
		common++
	}
	ups := len(bSegs) - common
	rest := pSegs[common:]

	if ups == 0 && len(rest) == 0 {
		return "."
	}
	parts := make([]string, 0, ups+len(rest))
	for i := 0; i < ups; i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, rest...)
	return strings.Join(parts, "/")
}

// HasPrefix reports whether prefix (treated as a directory: a trailing
// slash is implied if missing) is a literal path-component prefix of p.
// Purely lexical; no filesystem access is performed.
func HasPrefix(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	dirPrefix := prefix
	if !strings.HasSuffix(dirPrefix, "/") {
		dirPrefix += "/"
	}
	return p == prefix || strings.HasPrefix(p, dirPrefix)
}

// PrefixMapping is a single (old, new) path-prefix substitution rule.
type PrefixMapping struct {
	Old string
	New string
}

// ResolveViaPrefixMap substitutes the first matching old-prefix in pairs
// (in order) for its new-prefix. If no rule matches, p is returned
// unchanged.
func ResolveViaPrefixMap(p string, pairs []PrefixMapping) string {
	for _, pair := range pairs {
		if HasPrefix(p, pair.Old) {
			rest := strings.TrimPrefix(p, pair.Old)
			return pair.New + rest
		}
	}
	return p
}

// LastNSegments returns the last n path segments of p, joined by "/". If p
// has fewer than n segments, all of its segments are returned.
func LastNSegments(p string, n int) string {
	segs := splitSegments(Normalize(p))
	if n >= len(segs) {
		return strings.Join(segs, "/")
	}
	if n <= 0 {
		return ""
	}
	return strings.Join(segs[len(segs)-n:], "/")
}

// ParentDirectoryLevels returns the number of ".." segments a relative path
// p carries at its front, i.e. how many parent directory levels it walks
// above its base before descending again.
func ParentDirectoryLevels(p string) int {
	segs := splitSegments(Normalize(p))
	n := 0
	for _, s := range segs {
		if s != ".." {
			break
		}
		n++
	}
	return n
}

// Basename returns the final path segment of p, or "/" if p is the root.
func Basename(p string) string {
	np := Normalize(p)
	if np == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(np, '/')
	if idx < 0 {
		return np
	}
	return np[idx+1:]
}

// Dirname returns all but the final path segment of p.
func Dirname(p string) string {
	np := Normalize(p)
	idx := strings.LastIndexByte(np, '/')
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return np[:idx]
}

func splitSegments(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return nil
	}
	return strings.Split(p, "/")
}
