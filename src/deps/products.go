package deps

import "github.com/outpost-build/recc/src/reccpath"

// GuessProducts derives a candidate set of output files from a resolved
// dependency set, used when the caller did not override products
// explicitly. For each dependency, both a
// basename-derived guess and a full-path-derived guess are inserted, since
// different build systems place intermediates alongside the source or
// alongside the invocation's cwd.
func GuessProducts(dependencies []string) map[string]bool {
	products := map[string]bool{"a.out": true}
	for _, dep := range dependencies {
		base := stripLastExtension(reccpath.Basename(dep))
		for _, ext := range []string{".o", ".gch", ".d"} {
			products[reccpath.Normalize(base+ext)] = true
			products[reccpath.Normalize(dep+ext)] = true
		}
	}
	return products
}

func stripLastExtension(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
		if name[i] == '/' {
			break
		}
	}
	return name
}
