package stackenv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testEnv(t *testing.T, environ map[string]string, fileVars map[string]string) *StackEnv {
	t.Helper()
	home := t.TempDir()
	envFile := filepath.Join(home, "stacks", "dev", "env")
	if len(fileVars) > 0 {
		if err := UpdateEnvFile(envFile, fileVars); err != nil {
			t.Fatal(err)
		}
	}
	if environ == nil {
		environ = map[string]string{}
	}
	environ[KeyHomeDir] = home
	environ[KeyEnvFile] = envFile

	env, err := Resolve(environ, "dev")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return env
}

func TestValidateStackName(t *testing.T) {
	for _, ok := range []string{"default", "dev", "a", "my-stack-2"} {
		if err := ValidateStackName(ok); err != nil {
			t.Errorf("%q should be valid: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "-lead", "trail-", "UPPER", "has_underscore", "dot.name", strings.Repeat("a", 64)} {
		if err := ValidateStackName(bad); err == nil {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestLayering_ProcessEnvWins(t *testing.T) {
	env := testEnv(t,
		map[string]string{KeyCLIBuildMode: "always"},
		map[string]string{KeyCLIBuildMode: "never"})
	if got := env.BuildMode(); got != "always" {
		t.Errorf("build mode = %q, want process env to win", got)
	}
}

func TestLayering_FileBeatsDefault(t *testing.T) {
	env := testEnv(t, nil, map[string]string{KeyCLIBuildMode: "never"})
	if got := env.BuildMode(); got != "never" {
		t.Errorf("build mode = %q", got)
	}
}

func TestLayering_LegacyMirror(t *testing.T) {
	env := testEnv(t, map[string]string{"HAPPY_LOCAL_CLI_BUILD_MODE": "always"}, nil)
	if got := env.BuildMode(); got != "always" {
		t.Errorf("legacy mirror ignored: build mode = %q", got)
	}
}

func TestLayering_Defaults(t *testing.T) {
	env := testEnv(t, nil, nil)
	if got := env.BuildMode(); got != "auto" {
		t.Errorf("default build mode = %q", got)
	}
	if !env.IsolateHome() {
		t.Error("home isolation should default on")
	}
}

func TestIsolateHomeDisabled(t *testing.T) {
	env := testEnv(t, map[string]string{KeyPMIsolateHome: "0"}, nil)
	if env.IsolateHome() {
		t.Error("PM_ISOLATE_HOME=0 should disable isolation")
	}
	for _, kv := range env.ProcessEnv() {
		if strings.HasPrefix(kv, "HOME=") {
			t.Errorf("HOME must not be overridden when isolation is off: %s", kv)
		}
	}
}

func TestProcessEnv_Isolation(t *testing.T) {
	env := testEnv(t, nil, map[string]string{"DATABASE_URL": "postgres://x"})
	got := strings.Join(env.ProcessEnv(), "\n")

	for _, want := range []string{
		KeyStack + "=dev",
		"HAPPY_LOCAL_STACK=dev",
		KeyEnvFile + "=" + env.EnvFile,
		"XDG_CACHE_HOME=" + env.XDGCacheDir(),
		"YARN_CACHE_FOLDER=" + env.YarnCacheDir(),
		"COREPACK_ENABLE_AUTO_PIN=0",
		"HOME=" + env.IsolatedHomeDir(),
		"USERPROFILE=" + env.IsolatedHomeDir(),
		"DATABASE_URL=postgres://x",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("process env missing %q", want)
		}
	}
}

func TestDerivedPaths(t *testing.T) {
	env := testEnv(t, nil, nil)
	base := env.BaseDir
	if env.CacheDir() != filepath.Join(base, "cache") {
		t.Errorf("cache dir = %q", env.CacheDir())
	}
	if env.CorepackHomeDir() != filepath.Join(base, "cache", "corepack") {
		t.Errorf("corepack dir = %q", env.CorepackHomeDir())
	}
	if env.PidsFile() != filepath.Join(base, "pids.json") {
		t.Errorf("pids file = %q", env.PidsFile())
	}
	if env.BuildCacheDir() != filepath.Join(env.HomeDir, "cache", "build") {
		t.Errorf("build cache dir = %q", env.BuildCacheDir())
	}
}

func TestEnsureDirs(t *testing.T) {
	env := testEnv(t, nil, nil)
	env.EnsureDirs()
	for _, dir := range []string{env.XDGCacheDir(), env.YarnCacheDir(), env.NpmCacheDir(), env.CorepackHomeDir(), env.PidsDir(), env.IsolatedHomeDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("dir %s not created", dir)
		}
	}
}

func TestSandboxGating(t *testing.T) {
	unsandboxed := testEnv(t, nil, nil)
	if !unsandboxed.AllowGlobal() {
		t.Error("no sandbox: global side effects allowed")
	}

	sandboxed := testEnv(t, map[string]string{KeySandboxDir: "/tmp/sb"}, nil)
	if sandboxed.AllowGlobal() {
		t.Error("sandboxed without allow-global must refuse")
	}

	allowed := testEnv(t, map[string]string{KeySandboxDir: "/tmp/sb", KeySandboxAllowGlobal: "1"}, nil)
	if !allowed.AllowGlobal() {
		t.Error("sandboxed with allow-global must permit")
	}
}

func TestLegacyKey(t *testing.T) {
	if got := LegacyKey(KeyStack); got != "HAPPY_LOCAL_STACK" {
		t.Errorf("legacy key = %q", got)
	}
	if got := LegacyKey("OTHER"); got != "" {
		t.Errorf("non-stacks key should have no mirror, got %q", got)
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	env := testEnv(t, nil, nil)
	if err := env.Update(map[string]string{"FOO": "bar"}); err != nil {
		t.Fatal(err)
	}
	vars, err := ParseEnvFile(env.EnvFile)
	if err != nil || vars["FOO"] != "bar" {
		t.Errorf("vars = %v, err = %v", vars, err)
	}
}
