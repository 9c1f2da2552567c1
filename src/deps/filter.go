package deps

import "github.com/outpost-build/recc/src/reccpath"

// FilterOptions controls which parsed dependency paths survive into the
// final dependency set.
type FilterOptions struct {
	// GlobalPaths, when true, keeps absolute paths instead of dropping
	// them outright.
	GlobalPaths bool
	// ExcludePrefixes is only consulted when GlobalPaths is true: any
	// kept absolute path matching one of these prefixes is dropped.
	ExcludePrefixes []string
}

// Filter applies FilterOptions to a raw parsed dependency list, returning
// the surviving set in first-seen order.
func Filter(paths []string, opts FilterOptions) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if len(p) > 0 && p[0] == '/' {
			if !opts.GlobalPaths {
				continue
			}
			excluded := false
			for _, prefix := range opts.ExcludePrefixes {
				if reccpath.HasPrefix(p, prefix) {
					excluded = true
					break
				}
			}
			if excluded {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
