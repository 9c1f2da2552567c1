package compiler

// category classifies how a recognized compiler option participates in
// remote-argv / deps-probe-argv construction.
type category int

const (
	// interferesWithDeps options are emitted to the remote argv only;
	// they're suppressed from the probe argv because they'd otherwise
	// perturb the dependency-listing switches the resolver adds itself.
	interferesWithDeps category = iota
	// compile options mark the command as an actual compile invocation.
	compile
	// redirectsOutput options take a path argument naming a declared
	// output product.
	redirectsOutput
	// inputPath options take a path argument that should be path-rewritten
	// for the remote side but kept local for the probe.
	inputPath
	// preprocessorPassthrough options buffer their argument for re-parsing
	// against the preprocessor rule table, then re-emit wrapped in
	// "-Xpreprocessor".
	preprocessorPassthrough
	// unsupported options abort further option-by-option parsing; the
	// remainder of argv is copied verbatim to both vectors.
	unsupported
)

// rule is a single entry in a flavor's option table: how to recognize an
// option spelling and what to do with it.
type rule struct {
	category category
	// hasSeparateArg is true when the option's value may appear as the
	// next argv token (e.g. "-o foo.o") in addition to being glued on
	// (e.g. "-ofoo.o") or following an "=" sign.
	hasSeparateArg bool
}

// ruleTable maps an option spelling (the literal flag string, e.g. "-I",
// "-o", "-c") to its rule. Lookup first tries an exact match of the token
// (after stripping a "=value" suffix); if that fails, the longest key that
// is a literal prefix of the token wins, so "-I/usr/include" matches "-I".
type ruleTable map[string]rule

// gccCompileRules covers the gcc/g++/clang/clang++ family.
var gccCompileRules = ruleTable{
	"-c":              {category: compile},
	"-S":              {category: compile},
	"-E":              {category: compile},
	"-fsyntax-only":   {category: compile},
	"-o":              {category: redirectsOutput, hasSeparateArg: true},
	"-I":              {category: inputPath, hasSeparateArg: true},
	"-iquote":         {category: inputPath, hasSeparateArg: true},
	"-isystem":        {category: inputPath, hasSeparateArg: true},
	"-include":        {category: inputPath, hasSeparateArg: true},
	"-imacros":        {category: inputPath, hasSeparateArg: true},
	"-L":              {category: interferesWithDeps, hasSeparateArg: true},
	"-l":              {category: interferesWithDeps, hasSeparateArg: true},
	"-D":              {category: interferesWithDeps, hasSeparateArg: true},
	"-U":              {category: interferesWithDeps, hasSeparateArg: true},
	"-M":              {category: interferesWithDeps},
	"-MM":             {category: interferesWithDeps},
	"-MD":             {category: interferesWithDeps},
	"-MMD":            {category: interferesWithDeps},
	"-MG":             {category: interferesWithDeps},
	"-MP":             {category: interferesWithDeps},
	"-MF":             {category: interferesWithDeps, hasSeparateArg: true},
	"-MT":             {category: interferesWithDeps, hasSeparateArg: true},
	"-MQ":             {category: interferesWithDeps, hasSeparateArg: true},
	"-Xpreprocessor":  {category: preprocessorPassthrough, hasSeparateArg: true},
	"-Wp,":            {category: preprocessorPassthrough},
	"-frandom-seed":   {category: interferesWithDeps, hasSeparateArg: true},
	"-gsplit-dwarf":   {category: interferesWithDeps},
	"--param":         {category: interferesWithDeps, hasSeparateArg: true},
	"-march":          {category: interferesWithDeps},
	"-mtune":          {category: interferesWithDeps},
	"-x":              {category: interferesWithDeps, hasSeparateArg: true},
	"--sysroot":       {category: inputPath, hasSeparateArg: true},
	"-B":              {category: inputPath, hasSeparateArg: true},
	"-gcc-toolchain":  {category: inputPath, hasSeparateArg: true},
	"--gcc-toolchain": {category: inputPath},
	// Link-time optimization compiles every translation unit together at
	// link time, so a single remote Action for one source file can't carry
	// the information LTO needs from the rest of the build; fall back to
	// local compilation rather than produce a silently wrong remote result.
	"-flto": {category: unsupported},
}

// gccPreprocessorRules is the table consulted when re-parsing the buffered
// argument of a preprocessorPassthrough option (e.g. the value following
// "-Xpreprocessor").
var gccPreprocessorRules = ruleTable{
	"-I":       {category: inputPath, hasSeparateArg: true},
	"-D":       {category: interferesWithDeps, hasSeparateArg: true},
	"-U":       {category: interferesWithDeps, hasSeparateArg: true},
	"-include": {category: inputPath, hasSeparateArg: true},
	"-M":       {category: interferesWithDeps},
	"-MD":      {category: interferesWithDeps},
	"-MF":      {category: interferesWithDeps, hasSeparateArg: true},
}

// sunCPPRules covers Sun/Oracle Studio CC.
var sunCPPRules = ruleTable{
	"-c":  {category: compile},
	"-o":  {category: redirectsOutput, hasSeparateArg: true},
	"-I":  {category: inputPath, hasSeparateArg: true},
	"-L":  {category: interferesWithDeps, hasSeparateArg: true},
	"-l":  {category: interferesWithDeps, hasSeparateArg: true},
	"-D":  {category: interferesWithDeps, hasSeparateArg: true},
	"-U":  {category: interferesWithDeps, hasSeparateArg: true},
	"-xM": {category: interferesWithDeps},
}

// sunCRules covers Sun cc/c89/c99, which use the same table as sunCPPRules
// but never produce Sun-dialect make rules (see Flavor.ProducesSunMakeRules).
var sunCRules = sunCPPRules

// aixRules covers IBM XL C/C++.
var aixRules = ruleTable{
	"-c": {category: compile},
	"-o": {category: redirectsOutput, hasSeparateArg: true},
	"-I": {category: inputPath, hasSeparateArg: true},
	"-L": {category: interferesWithDeps, hasSeparateArg: true},
	"-l": {category: interferesWithDeps, hasSeparateArg: true},
	"-D": {category: interferesWithDeps, hasSeparateArg: true},
	"-U": {category: interferesWithDeps, hasSeparateArg: true},
	"-qmakedep": {category: interferesWithDeps},
}

// tableFor returns the option rule table for f.
func tableFor(f Flavor) ruleTable {
	switch f {
	case GccLike:
		return gccCompileRules
	case SunCPP:
		return sunCPPRules
	case SunC:
		return sunCRules
	case AIX:
		return aixRules
	default:
		return nil
	}
}

// lookup resolves the rule for raw option token tok (already stripped of a
// trailing "=value" suffix, if any) against table, trying an exact match
// first and falling back to the longest key that is a literal prefix of
// tok.
func (t ruleTable) lookup(tok string) (string, rule, bool) {
	if r, ok := t[tok]; ok {
		return tok, r, true
	}
	bestKey := ""
	var best rule
	found := false
	for key, r := range t {
		if len(key) > 0 && len(tok) >= len(key) && tok[:len(key)] == key {
			if len(key) > len(bestKey) {
				bestKey, best, found = key, r, true
			}
		}
	}
	return bestKey, best, found
}
