package compiler

import "strings"

// Flavor identifies a recognized compiler dialect. The parser's rule table
// and deps-probe construction are both keyed on this value.
type Flavor int

// Recognized flavors, in the order the detection table is consulted.
const (
	None Flavor = iota
	GccLike
	SunCPP
	SunC
	AIX
)

func (f Flavor) String() string {
	switch f {
	case GccLike:
		return "gcc-like"
	case SunCPP:
		return "sun-c++"
	case SunC:
		return "sun-c"
	case AIX:
		return "aix-xlc"
	default:
		return "none"
	}
}

var gccLikeNames = map[string]bool{
	"gcc": true, "g++": true, "c++": true, "clang": true, "clang++": true,
}

var sunCPPNames = map[string]bool{"CC": true}
var sunCNames = map[string]bool{"cc": true, "c89": true, "c99": true}
var aixNames = map[string]bool{
	"xlc": true, "xlc++": true, "xlC": true, "xlCcore": true, "xlc++core": true,
}

// DetectFlavor classifies compiler by the basename of argv[0], after
// stripping a trailing "_r" thread-safe suffix and any trailing
// digit/dot/dash version tail (e.g. "gcc-11.2" and "gcc_r" both detect as
// "gcc").
func DetectFlavor(basename string) Flavor {
	name := stripVersionTail(strings.TrimSuffix(basename, "_r"))
	switch {
	case gccLikeNames[name]:
		return GccLike
	case sunCPPNames[name]:
		return SunCPP
	case sunCNames[name]:
		return SunC
	case aixNames[name]:
		return AIX
	default:
		return None
	}
}

// IsClang reports whether basename (after the same stripping DetectFlavor
// applies) denotes a clang-family driver. It is only meaningful when the
// detected flavor is GccLike.
func IsClang(basename string) bool {
	name := stripVersionTail(strings.TrimSuffix(basename, "_r"))
	return strings.HasPrefix(name, "clang")
}

// ProducesSunMakeRules reports whether f emits Sun-dialect (not GNU-dialect)
// Make rules from its dependency-probe switches.
func (f Flavor) ProducesSunMakeRules() bool {
	return f == SunCPP || f == AIX
}

// stripVersionTail removes a trailing run of characters drawn from
// "0123456789.-" from name, e.g. "gcc-11.2" -> "gcc", "clang++14" -> "clang++".
// The stripped form is only used if it is itself a recognized driver name;
// this keeps names like "c89"/"c99", whose trailing digits are significant,
// intact.
func stripVersionTail(name string) string {
	end := len(name)
	for end > 0 && isVersionTailByte(name[end-1]) {
		end--
	}
	if end == 0 || end == len(name) {
		return name
	}
	trimmed := name[:end]
	if gccLikeNames[trimmed] || sunCPPNames[trimmed] || sunCNames[trimmed] || aixNames[trimmed] {
		return trimmed
	}
	return name
}

func isVersionTailByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.' || b == '-'
}
