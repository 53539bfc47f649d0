package stackenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Recognized environment variables. Each HAPPY_STACKS_* key has a legacy
// HAPPY_LOCAL_* mirror that is honored one layer below it.
const (
	KeyStack              = "HAPPY_STACKS_STACK"
	KeyEnvFile            = "HAPPY_STACKS_ENV_FILE"
	KeyHomeDir            = "HAPPY_STACKS_HOME_DIR"
	KeyCLIBuildMode       = "HAPPY_STACKS_CLI_BUILD_MODE"
	KeyPMIsolateHome      = "HAPPY_STACKS_PM_ISOLATE_HOME"
	KeySandboxDir         = "HAPPY_STACKS_SANDBOX_DIR"
	KeySandboxAllowGlobal = "HAPPY_STACKS_SANDBOX_ALLOW_GLOBAL"
	KeyDisableLLMAutoExec = "HAPPY_STACKS_DISABLE_LLM_AUTOEXEC"
	KeyTestTTY            = "HAPPY_STACKS_TEST_TTY"

	stacksPrefix = "HAPPY_STACKS_"
	legacyPrefix = "HAPPY_LOCAL_"
)

// LegacyKey maps a HAPPY_STACKS_* key to its HAPPY_LOCAL_* mirror.
func LegacyKey(key string) string {
	if !strings.HasPrefix(key, stacksPrefix) {
		return ""
	}
	return legacyPrefix + strings.TrimPrefix(key, stacksPrefix)
}

// DNS-safe label: lowercase alphanumerics and hyphens, no edge hyphens.
var stackNameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateStackName checks that name is a DNS-safe label.
func ValidateStackName(name string) error {
	if name == "" {
		return fmt.Errorf("stack name cannot be empty")
	}
	if !stackNameRe.MatchString(name) {
		return fmt.Errorf("stack name %q is not a DNS-safe label (lowercase alphanumerics and hyphens, max 63 chars)", name)
	}
	return nil
}

// defaults are the lowest layer of env resolution.
var defaults = map[string]string{
	KeyStack:         "default",
	KeyCLIBuildMode:  "auto",
	KeyPMIsolateHome: "1",
}

// StackEnv is the immutable resolved environment for one stack. All
// subprocess launches take it; nothing reads ambient globals after Resolve.
type StackEnv struct {
	Name    string
	EnvFile string // absolute path; uniquely identifies the stack
	BaseDir string // directory of EnvFile; cache/home roots live under it
	HomeDir string // per-machine state root

	environ  map[string]string // snapshot of the process env
	fileVars map[string]string // contents of EnvFile
}

// DefaultHomeDir returns the per-machine state root, honoring
// HAPPY_STACKS_HOME_DIR and its legacy mirror.
func DefaultHomeDir(environ map[string]string) (string, error) {
	if v := layered(environ, nil, KeyHomeDir); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".happy-stacks"), nil
}

// Environ converts os.Environ()-style pairs into a map.
func Environ(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

// Resolve builds the StackEnv for the active stack. The stack name comes
// from nameOverride, then HAPPY_STACKS_STACK (or legacy), then "default";
// the env file from HAPPY_STACKS_ENV_FILE (or legacy), then
// <home>/stacks/<name>/env.
func Resolve(environ map[string]string, nameOverride string) (*StackEnv, error) {
	name := nameOverride
	if name == "" {
		name = layered(environ, nil, KeyStack)
	}
	if name == "" {
		name = defaults[KeyStack]
	}
	if err := ValidateStackName(name); err != nil {
		return nil, err
	}

	homeDir, err := DefaultHomeDir(environ)
	if err != nil {
		return nil, err
	}

	envFile := layered(environ, nil, KeyEnvFile)
	if envFile == "" {
		envFile = filepath.Join(homeDir, "stacks", name, "env")
	}
	envFile, err = filepath.Abs(envFile)
	if err != nil {
		return nil, fmt.Errorf("resolve env file path: %w", err)
	}

	fileVars, err := ParseEnvFile(envFile)
	if err != nil {
		return nil, err
	}

	return &StackEnv{
		Name:     name,
		EnvFile:  envFile,
		BaseDir:  filepath.Dir(envFile),
		HomeDir:  homeDir,
		environ:  environ,
		fileVars: fileVars,
	}, nil
}

// layered resolves key through process env, then env file, then legacy
// mirrors of both, then defaults. Highest layer wins.
func layered(environ, fileVars map[string]string, key string) string {
	for _, k := range []string{key, LegacyKey(key)} {
		if k == "" {
			continue
		}
		for _, m := range []map[string]string{environ, fileVars} {
			if v, ok := m[k]; ok && v != "" {
				return v
			}
		}
	}
	return defaults[key]
}

// Get resolves key through the layer stack (process env → env file →
// legacy mirrors → defaults).
func (e *StackEnv) Get(key string) string {
	return layered(e.environ, e.fileVars, key)
}

// FileVars returns a copy of the raw env-file contents.
func (e *StackEnv) FileVars() map[string]string {
	out := make(map[string]string, len(e.fileVars))
	for k, v := range e.fileVars {
		out[k] = v
	}
	return out
}

// Update applies set to the stack's env file atomically.
func (e *StackEnv) Update(set map[string]string) error {
	return UpdateEnvFile(e.EnvFile, set)
}

// --- Derived paths ---

// CacheDir is the root of the stack's isolated caches.
func (e *StackEnv) CacheDir() string { return filepath.Join(e.BaseDir, "cache") }

func (e *StackEnv) XDGCacheDir() string     { return filepath.Join(e.CacheDir(), "xdg") }
func (e *StackEnv) YarnCacheDir() string    { return filepath.Join(e.CacheDir(), "yarn") }
func (e *StackEnv) NpmCacheDir() string     { return filepath.Join(e.CacheDir(), "npm") }
func (e *StackEnv) CorepackHomeDir() string { return filepath.Join(e.CacheDir(), "corepack") }

// IsolatedHomeDir is the stack-local HOME when PM home isolation is on.
func (e *StackEnv) IsolatedHomeDir() string { return filepath.Join(e.BaseDir, "home") }

// PidsDir holds per-process PID-state files for the stack.
func (e *StackEnv) PidsDir() string { return filepath.Join(e.BaseDir, "pids") }

// PidsFile is the supervisor-owned process registry for the stack.
func (e *StackEnv) PidsFile() string { return filepath.Join(e.BaseDir, "pids.json") }

// RuntimeStateFile records stack runtime state across starts/stops.
func (e *StackEnv) RuntimeStateFile() string { return filepath.Join(e.BaseDir, "state.json") }

// BuildCacheDir holds persisted build signatures, per machine (not per
// stack: signatures key on the component directory).
func (e *StackEnv) BuildCacheDir() string { return filepath.Join(e.HomeDir, "cache", "build") }

// ComponentsDir is where component repositories live by default.
func (e *StackEnv) ComponentsDir() string { return filepath.Join(e.HomeDir, "components") }

// --- Behavior toggles ---

// IsolateHome reports whether package managers run with a stack-local HOME.
func (e *StackEnv) IsolateHome() bool { return e.Get(KeyPMIsolateHome) != "0" }

// BuildMode returns auto|always|never for CLI builds.
func (e *StackEnv) BuildMode() string { return e.Get(KeyCLIBuildMode) }

// SandboxDir returns the sandbox root, empty when unsandboxed.
func (e *StackEnv) SandboxDir() string { return e.Get(KeySandboxDir) }

// AllowGlobal reports whether global side effects (menubar install, launch
// agents) are permitted.
func (e *StackEnv) AllowGlobal() bool {
	if e.SandboxDir() == "" {
		return true
	}
	return e.Get(KeySandboxAllowGlobal) == "1"
}

// DisableLLMAutoExec reports whether LLM helpers are forced to copy-only.
func (e *StackEnv) DisableLLMAutoExec() bool { return e.Get(KeyDisableLLMAutoExec) == "1" }

// TestTTY reports whether prompts must behave as if a TTY is attached.
func (e *StackEnv) TestTTY() bool { return e.Get(KeyTestTTY) == "1" }

// EnsureDirs creates the derived directories, best-effort.
func (e *StackEnv) EnsureDirs() {
	dirs := []string{
		e.XDGCacheDir(), e.YarnCacheDir(), e.NpmCacheDir(), e.CorepackHomeDir(),
		e.PidsDir(),
	}
	if e.IsolateHome() {
		dirs = append(dirs, e.IsolatedHomeDir())
	}
	for _, d := range dirs {
		_ = os.MkdirAll(d, 0o755)
	}
}

// ProcessEnv returns the environment variables to layer onto subprocess
// launches: stack identity, cache isolation, and (when enabled) HOME
// isolation. COREPACK_ENABLE_AUTO_PIN=0 keeps component package.json files
// untouched by corepack.
func (e *StackEnv) ProcessEnv() []string {
	env := []string{
		KeyStack + "=" + e.Name,
		LegacyKey(KeyStack) + "=" + e.Name,
		KeyEnvFile + "=" + e.EnvFile,
		LegacyKey(KeyEnvFile) + "=" + e.EnvFile,
		"XDG_CACHE_HOME=" + e.XDGCacheDir(),
		"YARN_CACHE_FOLDER=" + e.YarnCacheDir(),
		"NPM_CONFIG_CACHE=" + e.NpmCacheDir(),
		"COREPACK_HOME=" + e.CorepackHomeDir(),
		"COREPACK_ENABLE_AUTO_PIN=0",
	}
	for k, v := range e.fileVars {
		if !strings.HasPrefix(k, stacksPrefix) && !strings.HasPrefix(k, legacyPrefix) {
			env = append(env, k+"="+v)
		}
	}
	if e.IsolateHome() {
		env = append(env,
			"HOME="+e.IsolatedHomeDir(),
			"USERPROFILE="+e.IsolatedHomeDir(),
		)
	}
	return env
}
