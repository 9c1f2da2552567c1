// Package reccconfig reads recc's layered configuration: compiled-in
// defaults, overridden by a search path of ini-style config files read with
// please-build/gcfg (widest to narrowest scope), overridden by command-line
// flags parsed with thought-machine/go-flags, overridden last by RECC_*
// environment variables — mirroring core.ReadConfigFiles' layering, but
// producing one immutable struct threaded explicitly through the program
// rather than read from a package global.
package reccconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/please-build/gcfg"
)

// SystemConfigFile is the machine-wide config location, read first (lowest
// precedence among files).
const SystemConfigFile = "/etc/recc/recc.conf"

// fileSection is the gcfg-decoded shape of a recc.conf file. gcfg maps
// "[section]\nkey = value" onto nested structs the way core.Configuration
// does for Please's .plzconfig.
type fileSection struct {
	Recc struct {
		Server            string
		CASServer         string
		ActionCacheServer string
		Instance          string
		DigestFunction    string
		RetryLimit        int
		RetryDelayMillis  int
		DeprecatedFormat  bool
		LogLevel          string
		LogFile           string
		FileLogLevel      string
		JobsCount         int
		CacheOnly         bool
		ForceRemote       bool
		NoExecute         bool
		Verbose           bool
		DontSaveOutput    bool
		DepsGlobalPaths   bool
		DepsOverride      []string
		DepsDirectoryOverride string
		DepsEnvOverlay    []string
		OutputFilesOverride []string
		PrefixReplacement []string
		ExcludePaths      []string
		EnvironmentVariable []string
		Platform          []string
		ProjectRoot       string
	}
}

// Config is recc's fully-resolved, immutable configuration. Every field
// here corresponds to an entry in the ambient configuration table; field
// names match the RECC_* environment variable suffix for the most common
// ones (e.g. Server <-> RECC_SERVER) so Apply's lookup table stays obvious.
type Config struct {
	Server            string
	CASServer         string
	ActionCacheServer string
	Instance          string
	DigestFunction    string
	RetryLimit        int
	RetryDelayMillis  int
	LogLevel          string
	LogFile           string
	FileLogLevel      string
	JobsCount         int
	CacheOnly         bool
	ForceRemote       bool
	NoExecute         bool
	Verbose           bool
	DontSaveOutput    bool
	DepsGlobalPaths   bool

	DepsOverride          []string
	DepsDirectoryOverride string
	DepsEnvOverlay        map[string]string
	OutputFilesOverride   []string
	PrefixReplacement     []PrefixPair
	ExcludePaths          []string
	EnvironmentVariable   map[string]string
	Platform              map[string]string
	ProjectRoot           string
}

// PrefixPair is one "old=new" prefix-replacement rule as read from config.
type PrefixPair struct {
	Old, New string
}

// Default returns compiled-in defaults, the base every layer overrides.
func Default() Config {
	return Config{
		Server:           "localhost:8980",
		DigestFunction:   "SHA256",
		RetryLimit:       4,
		RetryDelayMillis: 1000,
		LogLevel:         "WARNING",
		FileLogLevel:     "WARNING",
		JobsCount:        4,
		DepsEnvOverlay:   map[string]string{},
		EnvironmentVariable: map[string]string{},
		Platform:            map[string]string{},
	}
}

// SearchPath returns the config files to read, in ascending precedence:
// the system file, the user's "$HOME/.recc/recc.conf", then ".recc.conf"
// at each directory from the project root down to cwd.
func SearchPath(cwd, projectRoot string) []string {
	var files []string
	files = append(files, SystemConfigFile)
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".recc", "recc.conf"))
	}

	if projectRoot == "" {
		projectRoot = cwd
	}
	rel, err := filepath.Rel(projectRoot, cwd)
	if err != nil || strings.HasPrefix(rel, "..") {
		files = append(files, filepath.Join(cwd, ".recc.conf"))
		return files
	}
	dir := projectRoot
	files = append(files, filepath.Join(dir, ".recc.conf"))
	if rel != "." {
		for _, seg := range strings.Split(rel, string(filepath.Separator)) {
			dir = filepath.Join(dir, seg)
			files = append(files, filepath.Join(dir, ".recc.conf"))
		}
	}
	return files
}

// Load reads every file in files that exists (missing files are not an
// error, matching core.readConfigFile's tolerance) and merges their
// settings into a Config seeded from Default.
func Load(files []string) (Config, error) {
	cfg := Default()
	for _, f := range files {
		var section fileSection
		if err := gcfg.ReadFileInto(&section, f); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cfg, fmt.Errorf("reccconfig: reading %s: %w", f, err)
		}
		applyFileSection(&cfg, section)
	}
	return cfg, nil
}

func applyFileSection(cfg *Config, s fileSection) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server, s.Recc.Server)
	set(&cfg.CASServer, s.Recc.CASServer)
	set(&cfg.ActionCacheServer, s.Recc.ActionCacheServer)
	set(&cfg.Instance, s.Recc.Instance)
	set(&cfg.DigestFunction, s.Recc.DigestFunction)
	set(&cfg.LogLevel, s.Recc.LogLevel)
	set(&cfg.LogFile, s.Recc.LogFile)
	set(&cfg.FileLogLevel, s.Recc.FileLogLevel)
	set(&cfg.DepsDirectoryOverride, s.Recc.DepsDirectoryOverride)
	set(&cfg.ProjectRoot, s.Recc.ProjectRoot)
	if s.Recc.RetryLimit != 0 {
		cfg.RetryLimit = s.Recc.RetryLimit
	}
	if s.Recc.RetryDelayMillis != 0 {
		cfg.RetryDelayMillis = s.Recc.RetryDelayMillis
	}
	if s.Recc.JobsCount != 0 {
		cfg.JobsCount = s.Recc.JobsCount
	}
	cfg.CacheOnly = cfg.CacheOnly || s.Recc.CacheOnly
	cfg.ForceRemote = cfg.ForceRemote || s.Recc.ForceRemote
	cfg.NoExecute = cfg.NoExecute || s.Recc.NoExecute
	cfg.Verbose = cfg.Verbose || s.Recc.Verbose
	cfg.DontSaveOutput = cfg.DontSaveOutput || s.Recc.DontSaveOutput
	cfg.DepsGlobalPaths = cfg.DepsGlobalPaths || s.Recc.DepsGlobalPaths

	if len(s.Recc.DepsOverride) > 0 {
		cfg.DepsOverride = s.Recc.DepsOverride
	}
	if len(s.Recc.OutputFilesOverride) > 0 {
		cfg.OutputFilesOverride = s.Recc.OutputFilesOverride
	}
	if len(s.Recc.ExcludePaths) > 0 {
		cfg.ExcludePaths = s.Recc.ExcludePaths
	}
	for _, kv := range s.Recc.DepsEnvOverlay {
		if k, v, ok := splitKV(kv); ok {
			cfg.DepsEnvOverlay[k] = v
		}
	}
	for _, kv := range s.Recc.EnvironmentVariable {
		if k, v, ok := splitKV(kv); ok {
			cfg.EnvironmentVariable[k] = v
		}
	}
	for _, kv := range s.Recc.Platform {
		if k, v, ok := splitKV(kv); ok {
			cfg.Platform[k] = v
		}
	}
	for _, pp := range s.Recc.PrefixReplacement {
		if k, v, ok := splitKV(pp); ok {
			cfg.PrefixReplacement = append(cfg.PrefixReplacement, PrefixPair{Old: k, New: v})
		}
	}
}

func splitKV(s string) (k, v string, ok bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// ApplyEnv overrides cfg in place from RECC_* environment variables, the
// highest-precedence layer. getenv is injected for testability.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("RECC_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := getenv("RECC_CAS_SERVER"); v != "" {
		cfg.CASServer = v
	}
	if v := getenv("RECC_ACTION_CACHE_SERVER"); v != "" {
		cfg.ActionCacheServer = v
	}
	if v := getenv("RECC_INSTANCE"); v != "" {
		cfg.Instance = v
	}
	if v := getenv("RECC_DIGEST_FUNCTION"); v != "" {
		cfg.DigestFunction = v
	}
	if v := getenv("RECC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("RECC_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("RECC_RETRY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryLimit = n
		}
	}
	if v := getenv("RECC_RETRY_DELAY_MILLIS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryDelayMillis = n
		}
	}
	if v := getenv("RECC_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JobsCount = n
		}
	}
	if v := getenv("RECC_CACHE_ONLY"); v != "" {
		cfg.CacheOnly = isTrue(v)
	}
	if v := getenv("RECC_FORCE_REMOTE"); v != "" {
		cfg.ForceRemote = isTrue(v)
	}
	if v := getenv("RECC_NO_EXECUTE"); v != "" {
		cfg.NoExecute = isTrue(v)
	}
	if v := getenv("RECC_VERBOSE"); v != "" {
		cfg.Verbose = isTrue(v)
	}
	if v := getenv("RECC_DEPS_GLOBAL_PATHS"); v != "" {
		cfg.DepsGlobalPaths = isTrue(v)
	}
	if v := getenv("RECC_DEPS_DIRECTORY_OVERRIDE"); v != "" {
		cfg.DepsDirectoryOverride = v
	}
	if v := getenv("RECC_PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := getenv("RECC_DEPS_OVERRIDE"); v != "" {
		cfg.DepsOverride = strings.Split(v, ":")
	}
	if v := getenv("RECC_OUTPUT_FILES_OVERRIDE"); v != "" {
		cfg.OutputFilesOverride = strings.Split(v, ":")
	}
	if v := getenv("RECC_PREFIX_REPLACEMENT"); v != "" {
		cfg.PrefixReplacement = nil
		for _, pair := range strings.Split(v, ":") {
			if k, val, ok := splitKVEquals(pair); ok {
				cfg.PrefixReplacement = append(cfg.PrefixReplacement, PrefixPair{Old: k, New: val})
			}
		}
	}
}

func splitKVEquals(s string) (string, string, bool) {
	idx := strings.Index(s, "=")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
