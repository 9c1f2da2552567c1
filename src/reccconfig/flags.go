package reccconfig

// CLIFlags is the thought-machine/go-flags option group recc's entrypoint
// parses argv[1:] against (before the compiler argv begins), following the
// `long:"..."` tag convention the teacher's command packages use. It holds
// the same fields as Config that make sense as one-shot overrides; JobsCount
// doesn't get a flag since it's a daemon-wide tuning knob, not a per-call one.
type CLIFlags struct {
	Server            string `long:"server" description:"REAPI execution server address"`
	CASServer         string `long:"cas-server" description:"REAPI CAS server address, defaults to --server"`
	ActionCacheServer string `long:"action-cache-server" description:"REAPI action-cache server address, defaults to --server"`
	Instance          string `long:"instance" description:"REAPI instance name"`
	ForceRemote       bool   `long:"force-remote" description:"Send every invocation remotely, not just recognized compiler commands"`
	NoExecute         bool   `long:"no-execute" description:"Assemble the action and print its digest without executing it"`
	CacheOnly         bool   `long:"cache-only" description:"Only probe the action cache; never submit an Execute request"`
	Verbose           bool   `short:"v" long:"verbose" description:"Enable DEBUG-level logging"`
}

// Apply overlays any CLIFlags field the user actually set onto cfg. Unlike
// ApplyEnv's "non-empty wins" rule, CLIFlags only carries fields whose zero
// value is never a meaningful override, so the overlay is a plain copy of
// whichever ones go-flags populated (callers pass the flags.Parser "IsSet"
// predicate-free group, matching the same tradeoff the teacher's own
// command flags make).
func (f CLIFlags) Apply(cfg *Config) {
	if f.Server != "" {
		cfg.Server = f.Server
	}
	if f.CASServer != "" {
		cfg.CASServer = f.CASServer
	}
	if f.ActionCacheServer != "" {
		cfg.ActionCacheServer = f.ActionCacheServer
	}
	if f.Instance != "" {
		cfg.Instance = f.Instance
	}
	if f.ForceRemote {
		cfg.ForceRemote = true
	}
	if f.NoExecute {
		cfg.NoExecute = true
	}
	if f.CacheOnly {
		cfg.CacheOnly = true
	}
	if f.Verbose {
		cfg.Verbose = true
		cfg.LogLevel = "DEBUG"
	}
}
